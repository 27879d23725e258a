package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

// Operations is the host's write interface.
type Operations interface {
	Upsert(table string, record Record, ctx context.Context) error
	Checkpoint(state State, ctx context.Context) error
}

// RecordSource yields records until io.EOF.
type RecordSource interface {
	Next() (Record, error)
}

// BatchedDriver upserts records in source order and checkpoints after every batch.
type BatchedDriver struct {
	Table     string
	BatchSize int
	RunID     string
	Now       func() time.Time
	Logger    log.FieldLogger
}

// Run drains source into ops and returns the last checkpointed state.
// A final checkpoint is only emitted for a non empty trailing batch, or when nothing was checkpointed,
// so every run ends with exactly one checkpoint carrying its total.
func (d BatchedDriver) Run(source RecordSource, ops Operations, ctx context.Context) (State, error) {
	var state State
	if d.BatchSize <= 0 {
		return state, fmt.Errorf("%w: batch size must be positive, have %d", ErrConfiguration, d.BatchSize)
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	batch := make([]Record, 0, d.BatchSize)
	var total int64
	checkpointed := false

	flush := func(final bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total += int64(len(batch))
		msg := "Processing batch"
		if final {
			msg = "Processing final batch"
		}
		logger.WithFields(log.Fields{"batch": len(batch), "records_processed": total}).Info(msg)
		for _, r := range batch {
			if err := ops.Upsert(d.Table, r, ctx); err != nil {
				return fmt.Errorf("failed to upsert record into %s %w", d.Table, err)
			}
		}
		batch = batch[:0]
		state = State{LastSync: now(), RecordsProcessed: total, RunID: d.RunID}
		if err := ops.Checkpoint(state, ctx); err != nil {
			return fmt.Errorf("failed to checkpoint after %d records %w", total, err)
		}
		checkpointed = true
		return nil
	}

	for {
		record, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return state, err
		}
		batch = append(batch, record)
		if len(batch) >= d.BatchSize {
			if err := flush(false); err != nil {
				return state, err
			}
		}
	}

	if len(batch) > 0 || !checkpointed {
		if err := flush(true); err != nil {
			return state, err
		}
	}

	logger.WithField("records_processed", total).Info("Completed processing records")
	return state, nil
}
