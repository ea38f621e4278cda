// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that a referenced box or row does not exist.
// Check with errors.Is.
var ErrNotFound = errors.New("ledger: not found")

// UnavailableError wraps a transient failure of the backing table:
// unreachable store, rate limiting, timeout. The gateway never retries
// internally; callers decide whether to re-drive the user-facing
// action.
type UnavailableError struct {
	// Op is the gateway operation that failed.
	Op string
	// Err is the underlying table error.
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ledger: %s: store unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// unavailable wraps err as an UnavailableError unless it already is
// one or is a not-found condition, which passes through untouched.
func unavailable(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var unavailableErr *UnavailableError
	if errors.As(err, &unavailableErr) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// IsUnavailable reports whether err carries an UnavailableError.
func IsUnavailable(err error) bool {
	var unavailableErr *UnavailableError
	return errors.As(err, &unavailableErr)
}
