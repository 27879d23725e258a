package cli

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	loopsync "github.com/homemade/loopsync/sync"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose        bool
	LogFormat      string // "json" | "text"
	Configuration  string // path to a configuration.json file
	ConfigEnv      string // name of an env var holding the configuration as json
	Settings       string // optional settings override yaml
	RecordRequests bool
}

// ValidLogFormats defines the allowed log formats.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the loopsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "loopsync",
		Short: "Sync the Loops audience into a warehouse",
		Long: `Export the full Loops audience, map standard and custom contact fields onto the
audience table and upsert it in checkpointed batches.

Credentials are read from a configuration.json file (SESSION_COOKIE, LOOPS_API_KEY)
or from an environment variable holding the same json object.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidLogFormat(opts.LogFormat) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid log format %q: must be one of %v", opts.LogFormat, ValidLogFormats))
			}
			setupLogging(opts)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Configuration, "configuration", "c", "configuration.json", "path to the connector configuration")
	cmd.PersistentFlags().StringVar(&opts.ConfigEnv, "config-env", "", "read the configuration from this env var instead of a file")
	cmd.PersistentFlags().StringVar(&opts.Settings, "settings", "", "yaml file overriding the default settings")
	cmd.PersistentFlags().BoolVar(&opts.RecordRequests, "record-requests", false, "record API traffic under testdata/.requests")

	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDocsCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))

	return cmd
}

func isValidLogFormat(format string) bool {
	for _, f := range ValidLogFormats {
		if f == format {
			return true
		}
	}
	return false
}

func setupLogging(opts *RootOptions) {
	log.SetOutput(os.Stderr)
	if opts.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if opts.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfiguration reads the host configuration from the env var or file named by the flags.
func loadConfiguration(opts *RootOptions) (loopsync.Configuration, error) {
	if opts.ConfigEnv != "" {
		return loopsync.LoadConfigurationFromEnvironment(opts.ConfigEnv)
	}
	return loopsync.LoadConfigurationFile(opts.Configuration)
}

// newConnector builds a connector from the global flags.
func newConnector(opts *RootOptions, extra ...loopsync.ConnectorOption) (*loopsync.Connector, error) {
	configuration, err := loadConfiguration(opts)
	if err != nil {
		return nil, WrapExitError(ExitCodeFor(err), "failed to load configuration", err)
	}
	log.WithField("configuration", configuration.String()).Debug("Loaded configuration")

	var configOptions []loopsync.ConfigOption
	if opts.Settings != "" {
		f, err := loopsync.ReadSettingsFile(opts.Settings)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load settings", err)
		}
		configOptions = append(configOptions, loopsync.ConfigWithOverrides(f))
	}

	connectorOptions := append([]loopsync.ConnectorOption{
		loopsync.ConnectorWithConfigOptions(configOptions...),
		loopsync.ConnectorWithRecordRequests(opts.RecordRequests),
	}, extra...)
	connector, err := loopsync.NewConnector(configuration, connectorOptions...)
	if err != nil {
		return nil, WrapExitError(ExitCodeFor(err), "invalid configuration", err)
	}
	return connector, nil
}
