package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	loopsync "github.com/homemade/loopsync/sync"
)

// ValidSchemaOutputs defines the allowed schema output formats.
var ValidSchemaOutputs = []string{"text", "json", "yaml"}

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Output string
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the audience table declaration",
		Long: `Discover the account's custom fields and print the audience table declaration:
standard columns, custom columns, their types and the primary key.

Example:
  loopsync schema -c configuration.json
  loopsync schema --output yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			connector, err := newConnector(opts.RootOptions)
			if err != nil {
				return err
			}
			schemas, err := connector.Schema(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCodeFor(err), "failed to resolve schema", err)
			}
			return writeSchemas(cmd.OutOrStdout(), opts.Output, schemas)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "output format (text|json|yaml)")

	return cmd
}

func writeSchemas(w io.Writer, output string, schemas []loopsync.TableSchema) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(schemas)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(schemas); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, s := range schemas {
			fmt.Fprintf(tw, "table %s (primary key: %s)\n", s.Table, strings.Join(s.PrimaryKey, ", "))
			for _, c := range s.Columns {
				origin := "custom"
				if c.Standard {
					origin = "standard"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", c.Canonical, c.Type, c.External, origin)
			}
		}
		return tw.Flush()
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid output %q: must be one of %v", output, ValidSchemaOutputs))
	}
}
