// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package box defines the box record schema shared by the ledger, the
// intake workflow, and the triage engine.
package box

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a box record.
type Status string

const (
	// StatusNew is the status of a freshly submitted box.
	StatusNew Status = "new"

	// StatusInProgress marks a box a warehouse worker has picked up.
	StatusInProgress Status = "in_progress"

	// StatusDone marks a processed box.
	StatusDone Status = "done"
)

var validStatuses = map[Status]bool{
	StatusNew:        true,
	StatusInProgress: true,
	StatusDone:       true,
}

// IsValidStatus reports whether s is a recognized status.
func IsValidStatus(s Status) bool { return validStatuses[s] }

// Pending reports whether the box still needs worker attention.
func (s Status) Pending() bool {
	return s == StatusNew || s == StatusInProgress
}

// Destination is one of the site's shipping lanes. The set is closed;
// adding a lane is a schema change, not configuration.
type Destination string

const (
	DestinationA Destination = "A"
	DestinationB Destination = "B"
	DestinationC Destination = "C"
)

// Destinations lists the valid lanes in display order.
var Destinations = []Destination{DestinationA, DestinationB, DestinationC}

// ParseDestination normalizes raw (trim, uppercase) and returns the
// matching lane, or an error for anything outside the closed set.
func ParseDestination(raw string) (Destination, error) {
	normalized := Destination(strings.ToUpper(strings.TrimSpace(raw)))
	for _, d := range Destinations {
		if normalized == d {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown destination %q (valid: A, B, C)", raw)
}

// Transition actions a worker can apply to a box. The controls
// attached to worker notifications carry one of these plus the box ID.
const (
	ActionMarkInProgress = "mark_in_progress"
	ActionMarkDone       = "mark_done"
)

// StatusForAction maps a transition action to its target status.
// Transitions are deliberately relaxed: any valid action applies at
// any time, including repeats and done → in_progress. Repeated clicks
// on a notification control must not error.
func StatusForAction(action string) (Status, bool) {
	switch action {
	case ActionMarkInProgress:
		return StatusInProgress, true
	case ActionMarkDone:
		return StatusDone, true
	default:
		return "", false
	}
}

// DateFormat is the calendar date layout for box dates, both in the
// ledger and in manual entry. Manual entry must match it exactly.
const DateFormat = "2006-01-02"

// ParseDate validates raw as a real calendar date in DateFormat and
// returns the normalized form.
func ParseDate(raw string) (string, error) {
	parsed, err := time.Parse(DateFormat, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid date %q (want %s): %w", raw, "YYYY-MM-DD", err)
	}
	return parsed.Format(DateFormat), nil
}

// IDPrefix is the fixed one-letter prefix of box identifiers.
const IDPrefix = "B"

// idDigits is the zero-padded width of the numeric suffix.
const idDigits = 4

// FirstID is the identifier assigned to the first box in an empty ledger.
var FirstID = FormatID(1)

// FormatID renders a counter value as a box identifier ("B0001").
// Counters past 9999 widen naturally and still sort numerically once
// parsed, though the fixed-width guarantee ends there.
func FormatID(counter int) string {
	return fmt.Sprintf("%s%0*d", IDPrefix, idDigits, counter)
}

// ParseID extracts the numeric counter from a box identifier.
func ParseID(id string) (int, error) {
	suffix, ok := strings.CutPrefix(id, IDPrefix)
	if !ok {
		return 0, fmt.Errorf("box ID %q does not start with %q", id, IDPrefix)
	}
	counter, err := strconv.Atoi(suffix)
	if err != nil || counter <= 0 {
		return 0, fmt.Errorf("box ID %q has invalid counter suffix", id)
	}
	return counter, nil
}

// NextID returns the identifier following last. Counters never reuse
// and never decrement, even across failed creations.
func NextID(last string) (string, error) {
	counter, err := ParseID(last)
	if err != nil {
		return "", err
	}
	return FormatID(counter + 1), nil
}

// Record is a box record as stored in the ledger. Everything except
// the status triple (Status, ProcessedBy, ProcessedAt) is immutable
// after creation.
type Record struct {
	// ID is the ledger-assigned box identifier. Unique, never reused.
	ID string

	// CreatedAt is the submission instant, set once at insert.
	CreatedAt time.Time

	// PhotoRefs are the opaque media references collected during
	// intake, in the order they were received. Never empty.
	PhotoRefs []string

	// CollectorID and CollectorName identify the submitter.
	CollectorID   string
	CollectorName string

	// BoxDate is the calendar date the collector chose, in DateFormat.
	BoxDate string

	// Destination is the shipping lane.
	Destination Destination

	// Status is the lifecycle state. Mutable.
	Status Status

	// ProcessedBy and ProcessedAt record the most recent status
	// transition. Overwritten on every transition; zero until the
	// first one.
	ProcessedBy string
	ProcessedAt time.Time

	// Notes is optional free text.
	Notes string

	// SubmissionID is the intake engine's token for this submission.
	// The ledger uses it to suppress duplicate appends when a create
	// is retried after a lost acknowledgment.
	SubmissionID string
}
