package cli

import (
	"github.com/spf13/cobra"

	loopsync "github.com/homemade/loopsync/sync"
)

// NewDocsCommand creates the docs command.
func NewDocsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "Print the audience field documentation as csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			connector, err := newConnector(rootOpts)
			if err != nil {
				return err
			}
			schemas, err := connector.Schema(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCodeFor(err), "failed to resolve schema", err)
			}
			for _, s := range schemas {
				b, err := loopsync.GenerateFieldDocumentation(s).CSV()
				if err != nil {
					return err
				}
				if _, err := cmd.OutOrStdout().Write(b); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
