// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger is the sole owner of the durable box table. It
// exposes record CRUD, status transitions, and membership list CRUD
// over a minimal row/column table abstraction (Table), so the backing
// store can be an embedded database, a flat file, or a remote
// spreadsheet service without the callers noticing.
//
// Every lookup is a linear scan over the sheet. That is O(n) in ledger
// size and is the accepted scaling limit: the target is hundreds to
// low thousands of records. Nothing above this package caches rows
// across calls; every read re-fetches, trading latency for
// staleness-freedom.
//
// Concurrency: identifier assignment and membership appends run under
// a single gateway-wide critical section, because "read last value,
// append row" must not interleave. Status updates perform no
// optimistic-concurrency check; two workers racing on the same box
// resolve as last-writer-wins.
package ledger
