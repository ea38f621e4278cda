// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package memtable provides an in-memory ledger.Table for tests and
// ephemeral runs. It supports failure injection so tests can exercise
// ledger-unavailable paths.
package memtable

import (
	"context"
	"fmt"
	"sync"

	"github.com/boxline/boxline/ledger"
)

// Table is an in-memory ledger.Table. Safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	sheets  map[string][][]string
	failAll error
	failN   int
	failErr error
}

// New returns an empty Table.
func New() *Table {
	return &Table{sheets: make(map[string][][]string)}
}

// FailNext makes the next n operations return err, then recover.
func (t *Table) FailNext(n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failN = n
	t.failErr = err
}

// FailAll makes every operation return err until cleared with a nil err.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failAll = err
}

// checkFailure must be called with the mutex held.
func (t *Table) checkFailure() error {
	if t.failAll != nil {
		return t.failAll
	}
	if t.failN > 0 {
		t.failN--
		return t.failErr
	}
	return nil
}

// Append implements ledger.Table.
func (t *Table) Append(ctx context.Context, sheet string, row []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFailure(); err != nil {
		return err
	}
	t.sheets[sheet] = append(t.sheets[sheet], append([]string(nil), row...))
	return nil
}

// ReadAll implements ledger.Table.
func (t *Table) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFailure(); err != nil {
		return nil, err
	}
	rows := make([][]string, len(t.sheets[sheet]))
	for i, row := range t.sheets[sheet] {
		rows[i] = append([]string(nil), row...)
	}
	return rows, nil
}

// Find implements ledger.Table.
func (t *Table) Find(ctx context.Context, sheet, key string) (int, []string, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFailure(); err != nil {
		return 0, nil, err
	}
	for i, row := range t.sheets[sheet] {
		if len(row) > 0 && row[0] == key {
			return i, append([]string(nil), row...), nil
		}
	}
	return 0, nil, fmt.Errorf("memtable: %s row %q: %w", sheet, key, ledger.ErrNotFound)
}

// WriteCell implements ledger.Table.
func (t *Table) WriteCell(ctx context.Context, sheet string, row, col int, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFailure(); err != nil {
		return err
	}
	rows := t.sheets[sheet]
	if row < 0 || row >= len(rows) {
		return fmt.Errorf("memtable: %s row %d: %w", sheet, row, ledger.ErrNotFound)
	}
	for len(rows[row]) <= col {
		rows[row] = append(rows[row], "")
	}
	rows[row][col] = value
	t.sheets[sheet] = rows
	return nil
}

// RowCount returns the number of rows in sheet. Test convenience.
func (t *Table) RowCount(sheet string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sheets[sheet])
}
