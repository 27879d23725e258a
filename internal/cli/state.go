package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/homemade/loopsync/warehouse"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	Warehouse string
	Name      string
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the last committed checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wh, err := warehouse.Open(opts.Warehouse, opts.Name, cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open warehouse", err)
			}
			defer wh.Close()

			state, err := wh.State(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read state", err)
			}
			if state.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), "{}")
				return nil
			}
			json, err := state.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), json)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Warehouse, "warehouse", "", "sqlite:PATH or postgres:DSN (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "loops", "connector name the checkpoint state is stored under")
	_ = cmd.MarkFlagRequired("warehouse")

	return cmd
}
