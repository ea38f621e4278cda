// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package triage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/boxline/boxline/chat/chattest"
	"github.com/boxline/boxline/ledger"
	"github.com/boxline/boxline/ledger/memtable"
	"github.com/boxline/boxline/lib/clock"
	"github.com/boxline/boxline/lib/schema/box"
	"github.com/boxline/boxline/roles"
	"github.com/boxline/boxline/triage"
)

type fixture struct {
	engine   *triage.Engine
	gateway  *ledger.Gateway
	table    *memtable.Table
	recorder *chattest.Recorder
	clock    *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table := memtable.New()
	fake := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway, err := ledger.New(ledger.Config{Table: table, Clock: fake, Logger: logger})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	recorder := chattest.NewRecorder()
	engine, err := triage.New(triage.Config{
		Gateway:  gateway,
		Resolver: roles.NewResolver([]string{"user:admin"}, gateway),
		Sender:   recorder,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("triage.New: %v", err)
	}
	return &fixture{engine: engine, gateway: gateway, table: table, recorder: recorder, clock: fake}
}

func (f *fixture) seedBox(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	if _, err := f.gateway.AddWorker(ctx, "user:boris"); err != nil {
		t.Fatalf("AddWorker: %v", err)
	}
	if _, err := f.gateway.AddCollector(ctx, "user:anna", "Anna"); err != nil {
		t.Fatalf("AddCollector: %v", err)
	}
	boxID, err := f.gateway.CreateBox(ctx, box.Record{
		PhotoRefs:     []string{"photo-1"},
		CollectorID:   "user:anna",
		CollectorName: "Anna",
		BoxDate:       "2026-03-14",
		Destination:   box.Destination("A"),
		SubmissionID:  "sub-1",
	})
	if err != nil {
		t.Fatalf("CreateBox: %v", err)
	}
	return boxID
}

func TestApplyTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boxID := f.seedBox(t)

	status, err := f.engine.ApplyTransition(ctx, boxID, box.ActionMarkInProgress, "user:boris")
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if status != box.StatusInProgress {
		t.Errorf("status = %q, want %q", status, box.StatusInProgress)
	}

	record, err := f.gateway.FindBox(ctx, boxID)
	if err != nil {
		t.Fatalf("FindBox: %v", err)
	}
	if record.ProcessedBy != "user:boris" {
		t.Errorf("processed by = %q, want user:boris", record.ProcessedBy)
	}
	if !record.ProcessedAt.Equal(f.clock.Now()) {
		t.Errorf("processed at = %v, want %v", record.ProcessedAt, f.clock.Now())
	}

	texts := f.recorder.TextsTo("user:anna")
	if len(texts) != 1 {
		t.Fatalf("collector got %d notifications, want 1", len(texts))
	}
	if !strings.Contains(texts[0].Body, boxID) || !strings.Contains(texts[0].Body, "in progress") {
		t.Errorf("notification body = %q", texts[0].Body)
	}
}

func TestRepeatedTransitionOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boxID := f.seedBox(t)
	if _, err := f.gateway.AddWorker(ctx, "user:vera"); err != nil {
		t.Fatalf("AddWorker: %v", err)
	}

	if _, err := f.engine.ApplyTransition(ctx, boxID, box.ActionMarkDone, "user:boris"); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	f.clock.Advance(5 * time.Minute)
	if _, err := f.engine.ApplyTransition(ctx, boxID, box.ActionMarkDone, "user:vera"); err != nil {
		t.Fatalf("repeated transition: %v", err)
	}

	record, err := f.gateway.FindBox(ctx, boxID)
	if err != nil {
		t.Fatalf("FindBox: %v", err)
	}
	if record.Status != box.StatusDone {
		t.Errorf("status = %q, want done", record.Status)
	}
	if record.ProcessedBy != "user:vera" {
		t.Errorf("processed by = %q, want the second actor", record.ProcessedBy)
	}
	if !record.ProcessedAt.Equal(f.clock.Now()) {
		t.Errorf("processed at = %v, want the second timestamp", record.ProcessedAt)
	}
}

func TestBackwardTransitionAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boxID := f.seedBox(t)

	if _, err := f.engine.ApplyTransition(ctx, boxID, box.ActionMarkDone, "user:boris"); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	status, err := f.engine.ApplyTransition(ctx, boxID, box.ActionMarkInProgress, "user:boris")
	if err != nil {
		t.Fatalf("backward transition: %v", err)
	}
	if status != box.StatusInProgress {
		t.Errorf("status = %q, want in_progress", status)
	}
}

func TestUnauthorizedActorRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boxID := f.seedBox(t)

	for _, actor := range []string{"user:anna", "user:stranger"} {
		_, err := f.engine.ApplyTransition(ctx, boxID, box.ActionMarkDone, actor)
		var unauthorized *roles.UnauthorizedError
		if !errors.As(err, &unauthorized) {
			t.Errorf("actor %s: err = %v, want UnauthorizedError", actor, err)
		}
	}

	record, err := f.gateway.FindBox(ctx, boxID)
	if err != nil {
		t.Fatalf("FindBox: %v", err)
	}
	if record.Status != box.StatusNew {
		t.Errorf("status = %q, ledger should be untouched", record.Status)
	}
}

func TestUnknownBox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBox(t)
	f.recorder.Reset()

	_, err := f.engine.ApplyTransition(ctx, "B9999", box.ActionMarkDone, "user:boris")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if texts := f.recorder.Texts(); len(texts) != 0 {
		t.Errorf("no notification should go out for an unknown box, got %d", len(texts))
	}
}

func TestUnknownActionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boxID := f.seedBox(t)

	if _, err := f.engine.ApplyTransition(ctx, boxID, "mark_lost", "user:boris"); err == nil {
		t.Fatal("unknown action should be rejected")
	}
	record, err := f.gateway.FindBox(ctx, boxID)
	if err != nil {
		t.Fatalf("FindBox: %v", err)
	}
	if record.Status != box.StatusNew {
		t.Errorf("status = %q, ledger should be untouched", record.Status)
	}
}

func TestNotificationFailureNotSurfaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boxID := f.seedBox(t)
	f.recorder.FailDeliveryTo("user:anna", errors.New("recipient gone"))

	status, err := f.engine.ApplyTransition(ctx, boxID, box.ActionMarkDone, "user:boris")
	if err != nil {
		t.Fatalf("transition should succeed despite notification failure: %v", err)
	}
	if status != box.StatusDone {
		t.Errorf("status = %q, want done", status)
	}
	record, err := f.gateway.FindBox(ctx, boxID)
	if err != nil {
		t.Fatalf("FindBox: %v", err)
	}
	if record.Status != box.StatusDone {
		t.Errorf("persisted status = %q, want done", record.Status)
	}
}
