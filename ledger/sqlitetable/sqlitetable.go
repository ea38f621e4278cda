// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitetable backs the ledger.Table abstraction with an
// embedded SQLite database. Rows are stored per sheet with dense,
// stable row numbers, preserving the row/column contract the gateway
// runs on: appends never renumber, rows are never deleted.
package sqlitetable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/boxline/boxline/ledger"
)

// Config holds the parameters for opening a Table.
type Config struct {
	// Path is the filesystem path to the database file. The parent
	// directory must exist; the file is created if it does not. Use
	// ":memory:" with PoolSize 1 for tests.
	Path string

	// PoolSize is the number of connections in the pool. If zero or
	// negative, defaults to max(runtime.NumCPU(), 4). SQLite
	// serializes writes regardless; extra connections help
	// concurrent reads.
	PoolSize int

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Table is a durable ledger.Table. Safe for concurrent use.
type Table struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

const schema = `
CREATE TABLE IF NOT EXISTS sheet_rows (
	sheet  TEXT    NOT NULL,
	rownum INTEGER NOT NULL,
	cells  TEXT    NOT NULL,
	PRIMARY KEY (sheet, rownum)
);
`

// Open creates the connection pool, applies standard pragmas to every
// connection, and ensures the schema exists. The caller must Close
// the table when done.
func Open(cfg Config) (*Table, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitetable: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitetable: opening %s: %w", cfg.Path, err)
	}

	table := &Table{pool: pool, logger: logger, path: cfg.Path}
	if err := table.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("ledger store opened", "path", cfg.Path, "pool_size", poolSize)
	return table, nil
}

// prepareConnection applies standard pragmas. WAL mode gives
// concurrent readers with a single writer and no reader blocking.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitetable: %s: %w", pragma, err)
		}
	}
	return nil
}

func (t *Table) ensureSchema(ctx context.Context) error {
	conn, err := t.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlitetable: take: %w", err)
	}
	defer t.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlitetable: creating schema: %w", err)
	}
	return nil
}

// Close closes all connections. Blocks until borrowed connections are
// returned.
func (t *Table) Close() error {
	if err := t.pool.Close(); err != nil {
		return fmt.Errorf("sqlitetable: closing %s: %w", t.path, err)
	}
	t.logger.Info("ledger store closed", "path", t.path)
	return nil
}

// Append implements ledger.Table.
func (t *Table) Append(ctx context.Context, sheet string, row []string) (err error) {
	cells, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("sqlitetable: encoding row: %w", err)
	}

	conn, err := t.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlitetable: take: %w", err)
	}
	defer t.pool.Put(conn)

	release := sqlitex.Save(conn)
	defer release(&err)

	var next int64
	err = sqlitex.Execute(conn,
		`SELECT COALESCE(MAX(rownum) + 1, 0) FROM sheet_rows WHERE sheet = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sheet},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				next = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("sqlitetable: next rownum for %s: %w", sheet, err)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO sheet_rows (sheet, rownum, cells) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{sheet, next, string(cells)}})
	if err != nil {
		return fmt.Errorf("sqlitetable: appending to %s: %w", sheet, err)
	}
	return nil
}

// ReadAll implements ledger.Table.
func (t *Table) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	conn, err := t.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitetable: take: %w", err)
	}
	defer t.pool.Put(conn)

	var rows [][]string
	err = sqlitex.Execute(conn,
		`SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY rownum`,
		&sqlitex.ExecOptions{
			Args: []any{sheet},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var row []string
				if err := json.Unmarshal([]byte(stmt.ColumnText(0)), &row); err != nil {
					return fmt.Errorf("decoding row: %w", err)
				}
				rows = append(rows, row)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlitetable: reading %s: %w", sheet, err)
	}
	return rows, nil
}

// Find implements ledger.Table. Linear scan in row order, matching
// the gateway's documented cost model.
func (t *Table) Find(ctx context.Context, sheet, key string) (int, []string, error) {
	rows, err := t.ReadAll(ctx, sheet)
	if err != nil {
		return 0, nil, err
	}
	for i, row := range rows {
		if len(row) > 0 && row[0] == key {
			return i, row, nil
		}
	}
	return 0, nil, fmt.Errorf("sqlitetable: %s row %q: %w", sheet, key, ledger.ErrNotFound)
}

// WriteCell implements ledger.Table.
func (t *Table) WriteCell(ctx context.Context, sheet string, row, col int, value string) (err error) {
	conn, err := t.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlitetable: take: %w", err)
	}
	defer t.pool.Put(conn)

	release := sqlitex.Save(conn)
	defer release(&err)

	var cells []string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT cells FROM sheet_rows WHERE sheet = ? AND rownum = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sheet, row},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				return json.Unmarshal([]byte(stmt.ColumnText(0)), &cells)
			},
		})
	if err != nil {
		return fmt.Errorf("sqlitetable: reading %s row %d: %w", sheet, row, err)
	}
	if !found {
		return fmt.Errorf("sqlitetable: %s row %d: %w", sheet, row, ledger.ErrNotFound)
	}

	for len(cells) <= col {
		cells = append(cells, "")
	}
	cells[col] = value

	encoded, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("sqlitetable: encoding row: %w", err)
	}
	err = sqlitex.Execute(conn,
		`UPDATE sheet_rows SET cells = ? WHERE sheet = ? AND rownum = ?`,
		&sqlitex.ExecOptions{Args: []any{string(encoded), sheet, row}})
	if err != nil {
		return fmt.Errorf("sqlitetable: updating %s row %d: %w", sheet, row, err)
	}
	return nil
}
