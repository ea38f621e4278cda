// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"

	"github.com/boxline/boxline/lib/schema/box"
)

// Stats summarizes the boxes sheet.
type Stats struct {
	// Total is the number of box records.
	Total int

	// ByStatus counts records per status.
	ByStatus map[box.Status]int

	// ByCollector counts records per collector display name.
	ByCollector map[string]int
}

// Stats computes a summary over the full boxes sheet.
func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	records, err := g.listBoxes(ctx, "stats", func(box.Record) bool { return true })
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Total:       len(records),
		ByStatus:    make(map[box.Status]int),
		ByCollector: make(map[string]int),
	}
	for _, record := range records {
		stats.ByStatus[record.Status]++
		stats.ByCollector[record.CollectorName]++
	}
	return stats, nil
}
