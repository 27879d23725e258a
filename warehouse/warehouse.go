// Package warehouse provides local destinations for connector runs.
//
// A warehouse implements the host write contract: upserts are buffered in a transaction that
// a checkpoint commits together with the checkpoint state, so a warehouse never holds rows
// from past the last checkpoint.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	loopsync "github.com/homemade/loopsync/sync"
)

// StateTable holds one checkpoint per connector.
const StateTable = "_loopsync_state"

// Warehouse is a destination a connector run can write into.
type Warehouse interface {
	loopsync.Operations
	// Apply creates declared tables and adds columns missing from existing ones.
	Apply(schemas []loopsync.TableSchema, ctx context.Context) error
	// State returns the last committed checkpoint, the zero State if there is none.
	State(ctx context.Context) (loopsync.State, error)
	Close() error
}

// Open opens a warehouse from a target of the form sqlite:PATH or postgres:DSN.
// postgres:// and postgresql:// urls are accepted as is.
func Open(target string, connector string, ctx context.Context) (Warehouse, error) {
	switch {
	case strings.HasPrefix(target, "postgres://"), strings.HasPrefix(target, "postgresql://"):
		return OpenPostgres(target, connector, ctx)
	case strings.HasPrefix(target, "postgres:"):
		return OpenPostgres(strings.TrimPrefix(target, "postgres:"), connector, ctx)
	case strings.HasPrefix(target, "sqlite:"):
		return OpenSQLite(strings.TrimPrefix(target, "sqlite:"), connector)
	default:
		return nil, fmt.Errorf("unsupported warehouse %q, expected sqlite:PATH or postgres:DSN", target)
	}
}
