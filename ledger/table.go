// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boxline/boxline/lib/schema/box"
)

// Sheet names within the backing table.
const (
	SheetBoxes      = "boxes"
	SheetCollectors = "collectors"
	SheetWorkers    = "workers"
)

// Table is the minimal row/column abstraction the gateway runs on.
// Rows are sequences of string cells addressed by zero-based row and
// column indices; sheets hold data rows only (the export path adds
// the header). Implementations must keep row indices stable across
// appends: rows are never deleted.
//
// Any error other than ErrNotFound is treated as transient
// unavailability by the gateway.
type Table interface {
	// Append adds a row at the end of sheet.
	Append(ctx context.Context, sheet string, row []string) error

	// ReadAll returns every row of sheet in insertion order. The
	// returned rows are the caller's to keep.
	ReadAll(ctx context.Context, sheet string) ([][]string, error)

	// Find returns the index and contents of the first row whose
	// first cell equals key, or ErrNotFound.
	Find(ctx context.Context, sheet, key string) (int, []string, error)

	// WriteCell overwrites a single cell. Returns ErrNotFound when
	// the row does not exist; rows are padded as needed when the
	// column is past the row's current width.
	WriteCell(ctx context.Context, sheet string, row, col int, value string) error
}

// Box sheet column layout. The order matches the exported CSV.
const (
	ColBoxID = iota
	ColCreatedAt
	ColPhotoRefs
	ColCollectorID
	ColCollectorName
	ColBoxDate
	ColDestination
	ColStatus
	ColProcessedBy
	ColProcessedAt
	ColNotes
	ColSubmissionID

	boxColumns
)

// BoxHeader is the header row of the boxes sheet as exported.
var BoxHeader = []string{
	"BoxID", "CreatedAt", "PhotoRefs", "CollectorID", "CollectorName",
	"BoxDate", "Destination", "Status", "ProcessedBy", "ProcessedAt",
	"Notes", "SubmissionID",
}

// photoRefSeparator joins photo references into one cell. Media
// references are transport identifiers and never contain it.
const photoRefSeparator = "|"

// timestampLayout is the cell format for instants.
const timestampLayout = time.RFC3339

func recordToRow(record box.Record) []string {
	row := make([]string, boxColumns)
	row[ColBoxID] = record.ID
	row[ColCreatedAt] = record.CreatedAt.UTC().Format(timestampLayout)
	row[ColPhotoRefs] = strings.Join(record.PhotoRefs, photoRefSeparator)
	row[ColCollectorID] = record.CollectorID
	row[ColCollectorName] = record.CollectorName
	row[ColBoxDate] = record.BoxDate
	row[ColDestination] = string(record.Destination)
	row[ColStatus] = string(record.Status)
	if !record.ProcessedAt.IsZero() {
		row[ColProcessedBy] = record.ProcessedBy
		row[ColProcessedAt] = record.ProcessedAt.UTC().Format(timestampLayout)
	}
	row[ColNotes] = record.Notes
	row[ColSubmissionID] = record.SubmissionID
	return row
}

func rowToRecord(row []string) (box.Record, error) {
	if len(row) < boxColumns {
		padded := make([]string, boxColumns)
		copy(padded, row)
		row = padded
	}

	record := box.Record{
		ID:            row[ColBoxID],
		CollectorID:   row[ColCollectorID],
		CollectorName: row[ColCollectorName],
		BoxDate:       row[ColBoxDate],
		Destination:   box.Destination(row[ColDestination]),
		Status:        box.Status(row[ColStatus]),
		ProcessedBy:   row[ColProcessedBy],
		Notes:         row[ColNotes],
		SubmissionID:  row[ColSubmissionID],
	}
	if record.ID == "" {
		return box.Record{}, fmt.Errorf("ledger: row has empty box ID")
	}
	if row[ColPhotoRefs] != "" {
		record.PhotoRefs = strings.Split(row[ColPhotoRefs], photoRefSeparator)
	}
	if row[ColCreatedAt] != "" {
		createdAt, err := time.Parse(timestampLayout, row[ColCreatedAt])
		if err != nil {
			return box.Record{}, fmt.Errorf("ledger: box %s has bad created timestamp %q: %w",
				record.ID, row[ColCreatedAt], err)
		}
		record.CreatedAt = createdAt
	}
	if row[ColProcessedAt] != "" {
		processedAt, err := time.Parse(timestampLayout, row[ColProcessedAt])
		if err != nil {
			return box.Record{}, fmt.Errorf("ledger: box %s has bad processed timestamp %q: %w",
				record.ID, row[ColProcessedAt], err)
		}
		record.ProcessedAt = processedAt
	}
	return record, nil
}
