// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
)

// exportTimestampLayout stamps export filenames for uniqueness.
const exportTimestampLayout = "20060102T150405Z"

// ExportCSV returns a full snapshot of the boxes sheet as CSV: header
// row first, then every data row verbatim, no filtering. The filename
// carries a UTC timestamp.
func (g *Gateway) ExportCSV(ctx context.Context) (filename string, content []byte, err error) {
	ctx, cancel := g.opContext(ctx)
	defer cancel()

	rows, err := g.table.ReadAll(ctx, SheetBoxes)
	if err != nil {
		return "", nil, unavailable("export", err)
	}

	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)
	if err := writer.Write(BoxHeader); err != nil {
		return "", nil, fmt.Errorf("ledger: export: writing header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return "", nil, fmt.Errorf("ledger: export: writing row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", nil, fmt.Errorf("ledger: export: %w", err)
	}

	filename = fmt.Sprintf("boxes_export_%s.csv", g.clock.Now().UTC().Format(exportTimestampLayout))
	return filename, buffer.Bytes(), nil
}
