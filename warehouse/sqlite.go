package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	loopsync "github.com/homemade/loopsync/sync"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a single file warehouse for local runs.
type SQLite struct {
	db        *sql.DB
	connector string
	schemas   map[string]loopsync.TableSchema
	tx        *sql.Tx
}

// OpenSQLite creates or opens a SQLite warehouse at path.
func OpenSQLite(path string, connector string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	stateTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		connector TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		run_id TEXT,
		updated_at TEXT NOT NULL
	)`, quoteIdent(StateTable))
	if _, err := db.Exec(stateTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state table: %w", err)
	}

	return &SQLite{
		db:        db,
		connector: connector,
		schemas:   make(map[string]loopsync.TableSchema),
	}, nil
}

// DB returns the underlying sql.DB for direct queries.
func (w *SQLite) DB() *sql.DB {
	return w.db
}

func (w *SQLite) Apply(schemas []loopsync.TableSchema, ctx context.Context) error {
	for _, schema := range schemas {
		if _, err := w.db.ExecContext(ctx, createTableSQL(sqliteDialect, schema)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", schema.Table, err)
		}
		existing, err := w.columns(schema.Table, ctx)
		if err != nil {
			return err
		}
		for _, c := range schema.Columns {
			if existing[c.Canonical] {
				continue
			}
			if _, err := w.db.ExecContext(ctx, addColumnSQL(sqliteDialect, schema.Table, c)); err != nil {
				return fmt.Errorf("failed to add column %s to %s: %w", c.Canonical, schema.Table, err)
			}
		}
		w.schemas[schema.Table] = schema
	}
	return nil
}

func (w *SQLite) columns(table string, ctx context.Context) (map[string]bool, error) {
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	result := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		result[name] = true
	}
	return result, rows.Err()
}

func (w *SQLite) begin(ctx context.Context) (*sql.Tx, error) {
	if w.tx != nil {
		return w.tx, nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	w.tx = tx
	return tx, nil
}

func (w *SQLite) Upsert(table string, record loopsync.Record, ctx context.Context) error {
	schema, err := lookupSchema(w.schemas, table)
	if err != nil {
		return err
	}
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	columns := upsertColumns(schema, record)
	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = record[c]
	}
	if _, err := tx.ExecContext(ctx, upsertSQL(sqliteDialect, schema, columns), args...); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

// Checkpoint stores state and commits every upsert made since the previous checkpoint.
func (w *SQLite) Checkpoint(state loopsync.State, ctx context.Context) error {
	json, err := state.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (connector, state, run_id, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (connector) DO UPDATE SET state = excluded.state, run_id = excluded.run_id, updated_at = excluded.updated_at`, quoteIdent(StateTable)),
		w.connector, json, state.RunID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	w.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

func (w *SQLite) State(ctx context.Context) (loopsync.State, error) {
	var json string
	err := w.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT state FROM %s WHERE connector = ?", quoteIdent(StateTable)), w.connector,
	).Scan(&json)
	if errors.Is(err, sql.ErrNoRows) {
		return loopsync.State{}, nil
	}
	if err != nil {
		return loopsync.State{}, fmt.Errorf("failed to read state: %w", err)
	}
	return loopsync.ParseState(json)
}

// Close rolls back upserts that were not checkpointed and closes the database.
func (w *SQLite) Close() error {
	var rollbackErr error
	if w.tx != nil {
		rollbackErr = w.tx.Rollback()
		w.tx = nil
	}
	return errors.Join(rollbackErr, w.db.Close())
}
