package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	loopsync "github.com/homemade/loopsync/sync"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres writes into a PostgreSQL database.
type Postgres struct {
	pool      *pgxpool.Pool
	connector string
	schemas   map[string]loopsync.TableSchema
	tx        pgx.Tx
}

// OpenPostgres connects to dsn and creates the state table if needed.
func OpenPostgres(dsn string, connector string, ctx context.Context) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	_, err = pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		connector TEXT PRIMARY KEY,
		state JSONB NOT NULL,
		run_id TEXT,
		updated_at TIMESTAMPTZ NOT NULL
	)`, quoteIdent(StateTable)))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create state table: %w", err)
	}
	return &Postgres{
		pool:      pool,
		connector: connector,
		schemas:   make(map[string]loopsync.TableSchema),
	}, nil
}

func (w *Postgres) Apply(schemas []loopsync.TableSchema, ctx context.Context) error {
	for _, schema := range schemas {
		if _, err := w.pool.Exec(ctx, createTableSQL(postgresDialect, schema)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", schema.Table, err)
		}
		for _, c := range schema.Columns {
			if _, err := w.pool.Exec(ctx, addColumnSQL(postgresDialect, schema.Table, c)); err != nil {
				return fmt.Errorf("failed to add column %s to %s: %w", c.Canonical, schema.Table, err)
			}
		}
		w.schemas[schema.Table] = schema
	}
	return nil
}

func (w *Postgres) begin(ctx context.Context) (pgx.Tx, error) {
	if w.tx != nil {
		return w.tx, nil
	}
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	w.tx = tx
	return tx, nil
}

func (w *Postgres) Upsert(table string, record loopsync.Record, ctx context.Context) error {
	schema, err := lookupSchema(w.schemas, table)
	if err != nil {
		return err
	}
	columns := upsertColumns(schema, record)
	args, err := postgresArgs(schema, record, columns)
	if err != nil {
		return err
	}
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, upsertSQL(postgresDialect, schema, columns), args...); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

// postgresArgs converts sanitized timestamp strings to time.Time for TIMESTAMPTZ columns.
func postgresArgs(schema loopsync.TableSchema, record loopsync.Record, columns []string) ([]any, error) {
	types := make(map[string]loopsync.FieldType, len(schema.Columns))
	for _, c := range schema.Columns {
		types[c.Canonical] = c.Type
	}
	args := make([]any, len(columns))
	for i, c := range columns {
		v := record[c]
		if s, ok := v.(string); ok && types[c] == loopsync.Timestamp {
			t, err := loopsync.ParseSanitizedTimestamp(s)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s value %q: %w", c, s, err)
			}
			v = t
		}
		args[i] = v
	}
	return args, nil
}

// Checkpoint stores state and commits every upsert made since the previous checkpoint.
func (w *Postgres) Checkpoint(state loopsync.State, ctx context.Context) error {
	json, err := state.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (connector, state, run_id, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (connector) DO UPDATE SET state = excluded.state, run_id = excluded.run_id, updated_at = excluded.updated_at`, quoteIdent(StateTable)),
		w.connector, json, state.RunID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	w.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

func (w *Postgres) State(ctx context.Context) (loopsync.State, error) {
	var json string
	err := w.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT state::text FROM %s WHERE connector = $1", quoteIdent(StateTable)), w.connector,
	).Scan(&json)
	if errors.Is(err, pgx.ErrNoRows) {
		return loopsync.State{}, nil
	}
	if err != nil {
		return loopsync.State{}, fmt.Errorf("failed to read state: %w", err)
	}
	return loopsync.ParseState(json)
}

// Close rolls back upserts that were not checkpointed and closes the pool.
func (w *Postgres) Close() error {
	var err error
	if w.tx != nil {
		err = w.tx.Rollback(context.Background())
		w.tx = nil
	}
	w.pool.Close()
	return err
}
