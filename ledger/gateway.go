// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boxline/boxline/lib/clock"
	"github.com/boxline/boxline/lib/schema/box"
)

// Config holds the parameters for constructing a Gateway.
type Config struct {
	// Table is the backing store. Required.
	Table Table

	// Clock stamps created and processed times. Defaults to Real().
	Clock clock.Clock

	// Logger receives operational messages. Defaults to slog.Default().
	Logger *slog.Logger

	// Timeout bounds each operation against the backing table. On
	// expiry the operation surfaces as UnavailableError. Defaults
	// to 10s.
	Timeout time.Duration
}

// Gateway is the sole reader and writer of the shared table.
type Gateway struct {
	table   Table
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration

	// appendMu serializes every read-then-append sequence: box ID
	// assignment and membership duplicate checks. Without it two
	// concurrent creations can compute the same next ID.
	appendMu sync.Mutex
}

// New constructs a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Table == nil {
		return nil, fmt.Errorf("ledger: Table is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		table:   cfg.Table,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
	}, nil
}

func (g *Gateway) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// CreateBox validates draft, assigns the next box identifier, and
// appends the record. The returned ID is unique and never reused:
// assignment scans the highest existing counter under the gateway's
// critical section, so a failed append never decrements the sequence.
//
// Duplicate suppression: draft.SubmissionID identifies the logical
// submission. If a retry arrives after an append whose acknowledgment
// was lost, the scan finds the earlier row and returns its ID instead
// of appending twice.
func (g *Gateway) CreateBox(ctx context.Context, draft box.Record) (string, error) {
	if len(draft.PhotoRefs) == 0 {
		return "", fmt.Errorf("ledger: create box: no photo references")
	}
	if draft.CollectorID == "" || draft.CollectorName == "" {
		return "", fmt.Errorf("ledger: create box: collector identity is incomplete")
	}
	if _, err := box.ParseDate(draft.BoxDate); err != nil {
		return "", fmt.Errorf("ledger: create box: %w", err)
	}
	if _, err := box.ParseDestination(string(draft.Destination)); err != nil {
		return "", fmt.Errorf("ledger: create box: %w", err)
	}
	if draft.SubmissionID == "" {
		return "", fmt.Errorf("ledger: create box: missing submission ID")
	}

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	g.appendMu.Lock()
	defer g.appendMu.Unlock()

	rows, err := g.table.ReadAll(ctx, SheetBoxes)
	if err != nil {
		return "", unavailable("create box", err)
	}

	highest := 0
	for _, row := range rows {
		if len(row) > ColSubmissionID && row[ColSubmissionID] == draft.SubmissionID {
			g.logger.Info("suppressed duplicate box submission",
				"box_id", row[ColBoxID],
				"submission_id", draft.SubmissionID,
			)
			return row[ColBoxID], nil
		}
		if counter, err := box.ParseID(row[ColBoxID]); err == nil && counter > highest {
			highest = counter
		}
	}

	record := draft
	record.ID = box.FormatID(highest + 1)
	record.CreatedAt = g.clock.Now().UTC()
	record.Status = box.StatusNew

	if err := g.table.Append(ctx, SheetBoxes, recordToRow(record)); err != nil {
		return "", unavailable("create box", err)
	}

	g.logger.Info("box created",
		"box_id", record.ID,
		"collector", record.CollectorID,
		"destination", record.Destination,
		"photos", len(record.PhotoRefs),
	)
	return record.ID, nil
}

// FindBox returns the record with the given identifier, or ErrNotFound.
func (g *Gateway) FindBox(ctx context.Context, boxID string) (box.Record, error) {
	ctx, cancel := g.opContext(ctx)
	defer cancel()

	_, row, err := g.table.Find(ctx, SheetBoxes, boxID)
	if err != nil {
		return box.Record{}, unavailable("find box", err)
	}
	return rowToRecord(row)
}

// UpdateStatus overwrites the status triple of the box row. The three
// cell writes are sequential, not atomic: a crash between them can
// leave the status updated with a stale actor or timestamp. Accepted
// risk at this scale. There is no optimistic-concurrency check;
// concurrent updates resolve as last-writer-wins.
func (g *Gateway) UpdateStatus(ctx context.Context, boxID string, status box.Status, actorID string) error {
	if !box.IsValidStatus(status) {
		return fmt.Errorf("ledger: update status: unknown status %q", status)
	}

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	rowIndex, _, err := g.table.Find(ctx, SheetBoxes, boxID)
	if err != nil {
		return unavailable("update status", err)
	}

	processedAt := g.clock.Now().UTC().Format(timestampLayout)
	if err := g.table.WriteCell(ctx, SheetBoxes, rowIndex, ColStatus, string(status)); err != nil {
		return unavailable("update status", err)
	}
	if err := g.table.WriteCell(ctx, SheetBoxes, rowIndex, ColProcessedBy, actorID); err != nil {
		return unavailable("update status", err)
	}
	if err := g.table.WriteCell(ctx, SheetBoxes, rowIndex, ColProcessedAt, processedAt); err != nil {
		return unavailable("update status", err)
	}

	g.logger.Info("box status updated",
		"box_id", boxID,
		"status", status,
		"actor", actorID,
	)
	return nil
}

// ListBoxesByCollector returns every box submitted by collectorID, in
// creation order.
func (g *Gateway) ListBoxesByCollector(ctx context.Context, collectorID string) ([]box.Record, error) {
	return g.listBoxes(ctx, "list boxes by collector", func(r box.Record) bool {
		return r.CollectorID == collectorID
	})
}

// ListPendingBoxes returns every box still awaiting worker attention
// (status new or in_progress), in creation order.
func (g *Gateway) ListPendingBoxes(ctx context.Context) ([]box.Record, error) {
	return g.listBoxes(ctx, "list pending boxes", func(r box.Record) bool {
		return r.Status.Pending()
	})
}

func (g *Gateway) listBoxes(ctx context.Context, op string, keep func(box.Record) bool) ([]box.Record, error) {
	ctx, cancel := g.opContext(ctx)
	defer cancel()

	rows, err := g.table.ReadAll(ctx, SheetBoxes)
	if err != nil {
		return nil, unavailable(op, err)
	}

	var records []box.Record
	for i, row := range rows {
		record, err := rowToRecord(row)
		if err != nil {
			// A malformed row must not hide the rest of the ledger.
			g.logger.Warn("skipping malformed ledger row", "sheet", SheetBoxes, "row", i, "error", err)
			continue
		}
		if keep(record) {
			records = append(records, record)
		}
	}
	return records, nil
}

// Collector is one entry of the collectors membership list.
type Collector struct {
	ID   string
	Name string
}

// Membership sheet column layout: collectors are (ID, Name, AddedAt),
// workers are (ID, AddedAt).
const (
	memberIDCol   = 0
	memberNameCol = 1
)

// ListWorkers returns the worker membership list.
func (g *Gateway) ListWorkers(ctx context.Context) ([]string, error) {
	ctx, cancel := g.opContext(ctx)
	defer cancel()

	rows, err := g.table.ReadAll(ctx, SheetWorkers)
	if err != nil {
		return nil, unavailable("list workers", err)
	}

	var workers []string
	for _, row := range rows {
		if len(row) > memberIDCol && row[memberIDCol] != "" {
			workers = append(workers, row[memberIDCol])
		}
	}
	return workers, nil
}

// ListCollectors returns the collector membership list.
func (g *Gateway) ListCollectors(ctx context.Context) ([]Collector, error) {
	ctx, cancel := g.opContext(ctx)
	defer cancel()

	rows, err := g.table.ReadAll(ctx, SheetCollectors)
	if err != nil {
		return nil, unavailable("list collectors", err)
	}

	var collectors []Collector
	for _, row := range rows {
		if len(row) <= memberIDCol || row[memberIDCol] == "" {
			continue
		}
		collector := Collector{ID: row[memberIDCol]}
		if len(row) > memberNameCol {
			collector.Name = row[memberNameCol]
		}
		collectors = append(collectors, collector)
	}
	return collectors, nil
}

// CollectorName looks up the registered display name for id. The
// second return is false when id is not in the collectors list.
func (g *Gateway) CollectorName(ctx context.Context, id string) (string, bool, error) {
	collectors, err := g.ListCollectors(ctx)
	if err != nil {
		return "", false, err
	}
	for _, collector := range collectors {
		if collector.ID == id {
			return collector.Name, true, nil
		}
	}
	return "", false, nil
}

// AddWorker appends id to the worker list. Returns false with a nil
// error when id is already listed; duplicate insertion is a no-op
// signal, not an error.
func (g *Gateway) AddWorker(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("ledger: add worker: empty identity")
	}

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	g.appendMu.Lock()
	defer g.appendMu.Unlock()

	workers, err := g.ListWorkers(ctx)
	if err != nil {
		return false, err
	}
	for _, worker := range workers {
		if worker == id {
			return false, nil
		}
	}

	addedAt := g.clock.Now().UTC().Format(timestampLayout)
	if err := g.table.Append(ctx, SheetWorkers, []string{id, addedAt}); err != nil {
		return false, unavailable("add worker", err)
	}
	g.logger.Info("worker added", "worker", id)
	return true, nil
}

// AddCollector appends (id, name) to the collectors list. Returns
// false with a nil error when id is already listed.
func (g *Gateway) AddCollector(ctx context.Context, id, name string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("ledger: add collector: empty identity")
	}
	if name == "" {
		return false, fmt.Errorf("ledger: add collector: empty display name")
	}

	ctx, cancel := g.opContext(ctx)
	defer cancel()

	g.appendMu.Lock()
	defer g.appendMu.Unlock()

	collectors, err := g.ListCollectors(ctx)
	if err != nil {
		return false, err
	}
	for _, collector := range collectors {
		if collector.ID == id {
			return false, nil
		}
	}

	addedAt := g.clock.Now().UTC().Format(timestampLayout)
	if err := g.table.Append(ctx, SheetCollectors, []string{id, name, addedAt}); err != nil {
		return false, unavailable("add collector", err)
	}
	g.logger.Info("collector added", "collector", id, "name", name)
	return true, nil
}
