package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/homemade/loopsync/warehouse"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Warehouse string
	Name      string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run one sync into a warehouse",
		Long: `Run one full sync: export the audience, wait for it to complete, download it
and upsert every contact into the warehouse, committing at each checkpoint.

The warehouse is created if it doesn't exist and new custom columns are added.

Example:
  loopsync update --warehouse sqlite:./warehouse.db
  loopsync update --warehouse postgres://user@localhost/loops --config-env LOOPS_CONNECTOR`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Warehouse, "warehouse", "", "sqlite:PATH or postgres:DSN (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "loops", "connector name the checkpoint state is stored under")
	_ = cmd.MarkFlagRequired("warehouse")

	return cmd
}

func runUpdate(opts *UpdateOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector, err := newConnector(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := log.WithField("run_id", connector.RunID)

	schemas, err := connector.Schema(ctx)
	if err != nil {
		return WrapExitError(ExitCodeFor(err), "failed to resolve schema", err)
	}

	wh, err := warehouse.Open(opts.Warehouse, opts.Name, ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open warehouse", err)
	}
	defer func() {
		if err := wh.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close warehouse")
		}
	}()

	if err := wh.Apply(schemas, ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to apply schema", err)
	}
	prior, err := wh.State(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read previous state", err)
	}

	state, err := connector.Update(prior, wh, ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Warn("Sync interrupted, rows after the last checkpoint were rolled back")
		}
		return WrapExitError(ExitCodeFor(err), "sync failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "synced %d records into %s (run %s)\n",
		state.RecordsProcessed, connector.Config.Sync.Table, connector.RunID)
	return nil
}
