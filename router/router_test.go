// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package router_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boxline/boxline/chat"
	"github.com/boxline/boxline/chat/chattest"
	"github.com/boxline/boxline/intake"
	"github.com/boxline/boxline/ledger"
	"github.com/boxline/boxline/ledger/memtable"
	"github.com/boxline/boxline/lib/clock"
	"github.com/boxline/boxline/lib/schema/box"
	"github.com/boxline/boxline/roles"
	"github.com/boxline/boxline/router"
	"github.com/boxline/boxline/triage"
)

type fixture struct {
	router   *router.Router
	gateway  *ledger.Gateway
	table    *memtable.Table
	recorder *chattest.Recorder
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
	resolver := roles.NewResolver([]string{"user:admin"}, gateway)

	intakeEngine, err := intake.New(intake.Config{
		Gateway: gateway, Resolver: resolver, Sender: recorder, Clock: fake, Logger: logger,
	})
	if err != nil {
		t.Fatalf("intake.New: %v", err)
	}
	triageEngine, err := triage.New(triage.Config{
		Gateway: gateway, Resolver: resolver, Sender: recorder, Logger: logger,
	})
	if err != nil {
		t.Fatalf("triage.New: %v", err)
	}
	rt, err := router.New(router.Config{
		Gateway: gateway, Resolver: resolver,
		Intake: intakeEngine, Triage: triageEngine,
		Sender: recorder, Logger: logger,
	})
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}

	ctx := context.Background()
	if _, err := gateway.AddCollector(ctx, "user:anna", "Anna"); err != nil {
		t.Fatalf("AddCollector: %v", err)
	}
	if _, err := gateway.AddWorker(ctx, "user:boris"); err != nil {
		t.Fatalf("AddWorker: %v", err)
	}
	return &fixture{router: rt, gateway: gateway, table: table, recorder: recorder}
}

func (f *fixture) text(t *testing.T, user chat.UserID, body string) {
	t.Helper()
	err := f.router.Dispatch(context.Background(), chat.Event{
		Kind: chat.EventText, User: user, Text: body,
	})
	if err != nil {
		t.Fatalf("Dispatch(text %q): %v", body, err)
	}
}

func (f *fixture) seedBox(t *testing.T, submissionID string) string {
	t.Helper()
	boxID, err := f.gateway.CreateBox(context.Background(), box.Record{
		PhotoRefs:     []string{"photo-1"},
		CollectorID:   "user:anna",
		CollectorName: "Anna",
		BoxDate:       "2026-03-14",
		Destination:   box.Destination("A"),
		SubmissionID:  submissionID,
	})
	if err != nil {
		t.Fatalf("CreateBox: %v", err)
	}
	return boxID
}

func lastText(t *testing.T, recorder *chattest.Recorder, user chat.UserID) string {
	t.Helper()
	texts := recorder.TextsTo(user)
	if len(texts) == 0 {
		t.Fatalf("no texts sent to %s", user)
	}
	return texts[len(texts)-1].Body
}

func TestMenuPerRole(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		user chat.UserID
		want string
	}{
		{"user:admin", "export"},
		{"user:boris", "pending"},
		{"user:anna", "mine"},
		{"user:stranger", "not registered"},
	}
	for _, test := range tests {
		f.text(t, test.user, "/start")
		if got := lastText(t, f.recorder, test.user); !strings.Contains(got, test.want) {
			t.Errorf("menu for %s = %q, want mention of %q", test.user, got, test.want)
		}
	}
}

func TestUnknownInputShowsMenu(t *testing.T) {
	f := newFixture(t)
	f.text(t, "user:anna", "blorp")
	if got := lastText(t, f.recorder, "user:anna"); !strings.Contains(got, "new") {
		t.Errorf("unknown input reply = %q, want collector menu", got)
	}
}

func TestNewRoutesIntoIntake(t *testing.T) {
	f := newFixture(t)
	f.text(t, "user:anna", "new")
	if got := lastText(t, f.recorder, "user:anna"); !strings.Contains(got, "photo") {
		t.Fatalf("expected intake photo prompt, got %q", got)
	}

	// Subsequent events route into the active workflow, not commands.
	err := f.router.Dispatch(context.Background(), chat.Event{
		Kind: chat.EventPhoto, User: "user:anna", Photo: "photo-1",
	})
	if err != nil {
		t.Fatalf("Dispatch(photo): %v", err)
	}
	if got := lastText(t, f.recorder, "user:anna"); !strings.Contains(got, "Photo received") {
		t.Errorf("photo during intake reply = %q", got)
	}
}

func TestNewRejectedForWorker(t *testing.T) {
	f := newFixture(t)
	f.text(t, "user:boris", "new")
	if got := lastText(t, f.recorder, "user:boris"); !strings.Contains(got, "Only collectors") {
		t.Errorf("reply = %q, want entry rejection", got)
	}
}

func TestButtonAppliesTransition(t *testing.T) {
	f := newFixture(t)
	boxID := f.seedBox(t, "sub-1")

	err := f.router.Dispatch(context.Background(), chat.Event{
		Kind: chat.EventButton, User: "user:boris",
		Control: &chat.ControlData{Action: box.ActionMarkDone, BoxID: boxID},
	})
	if err != nil {
		t.Fatalf("Dispatch(button): %v", err)
	}

	record, err := f.gateway.FindBox(context.Background(), boxID)
	if err != nil {
		t.Fatalf("FindBox: %v", err)
	}
	if record.Status != box.StatusDone {
		t.Errorf("status = %q, want done", record.Status)
	}
	if got := lastText(t, f.recorder, "user:boris"); !strings.Contains(got, "marked done") {
		t.Errorf("actor reply = %q", got)
	}
	// The collector hears about it too.
	if got := lastText(t, f.recorder, "user:anna"); !strings.Contains(got, boxID) {
		t.Errorf("collector notification = %q", got)
	}
}

func TestButtonUnknownBox(t *testing.T) {
	f := newFixture(t)
	f.seedBox(t, "sub-1")
	f.recorder.Reset()

	err := f.router.Dispatch(context.Background(), chat.Event{
		Kind: chat.EventButton, User: "user:boris",
		Control: &chat.ControlData{Action: box.ActionMarkDone, BoxID: "B9999"},
	})
	if err != nil {
		t.Fatalf("Dispatch(button): %v", err)
	}
	if got := lastText(t, f.recorder, "user:boris"); !strings.Contains(got, "not in the ledger") {
		t.Errorf("reply = %q", got)
	}
	if texts := f.recorder.TextsTo("user:anna"); len(texts) != 0 {
		t.Errorf("collector should not be notified for an unknown box, got %d texts", len(texts))
	}
}

func TestButtonUnauthorized(t *testing.T) {
	f := newFixture(t)
	boxID := f.seedBox(t, "sub-1")

	err := f.router.Dispatch(context.Background(), chat.Event{
		Kind: chat.EventButton, User: "user:anna",
		Control: &chat.ControlData{Action: box.ActionMarkDone, BoxID: boxID},
	})
	if err != nil {
		t.Fatalf("Dispatch(button): %v", err)
	}
	if got := lastText(t, f.recorder, "user:anna"); !strings.Contains(got, "not allowed") {
		t.Errorf("reply = %q", got)
	}
	record, err := f.gateway.FindBox(context.Background(), boxID)
	if err != nil {
		t.Fatalf("FindBox: %v", err)
	}
	if record.Status != box.StatusNew {
		t.Errorf("status = %q, ledger should be untouched", record.Status)
	}
}

func TestPendingListing(t *testing.T) {
	f := newFixture(t)
	doneID := f.seedBox(t, "sub-1")
	pendingID := f.seedBox(t, "sub-2")
	if err := f.gateway.UpdateStatus(context.Background(), doneID, box.StatusDone, "user:boris"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	f.recorder.Reset()

	f.text(t, "user:boris", "pending")
	photos := f.recorder.PhotosTo("user:boris")
	if len(photos) != 1 {
		t.Fatalf("got %d pending cards, want 1", len(photos))
	}
	if !strings.Contains(photos[0].Caption, pendingID) {
		t.Errorf("caption = %q, want box %s", photos[0].Caption, pendingID)
	}
	if len(photos[0].Controls) != 2 {
		t.Errorf("pending card has %d controls, want 2", len(photos[0].Controls))
	}
}

func TestPendingCardFallsBackToTextWithoutPhoto(t *testing.T) {
	f := newFixture(t)
	// A legacy row with no photo references: the listing must still
	// deliver it, as text with the transition controls attached.
	row := make([]string, 12)
	row[0] = "B0001"
	row[7] = string(box.StatusNew)
	if err := f.table.Append(context.Background(), ledger.SheetBoxes, row); err != nil {
		t.Fatalf("seeding row: %v", err)
	}
	f.recorder.Reset()

	f.text(t, "user:boris", "pending")
	if photos := f.recorder.PhotosTo("user:boris"); len(photos) != 0 {
		t.Fatalf("got %d photo cards, want 0", len(photos))
	}
	texts := f.recorder.TextsTo("user:boris")
	if len(texts) != 1 {
		t.Fatalf("got %d text cards, want 1", len(texts))
	}
	if !strings.Contains(texts[0].Body, "B0001") || len(texts[0].Controls) != 2 {
		t.Errorf("text card = %q with %d controls", texts[0].Body, len(texts[0].Controls))
	}
}

func TestPendingDeniedForCollector(t *testing.T) {
	f := newFixture(t)
	f.seedBox(t, "sub-1")
	f.recorder.Reset()

	f.text(t, "user:anna", "pending")
	if photos := f.recorder.PhotosTo("user:anna"); len(photos) != 0 {
		t.Errorf("collector got %d pending cards, want 0", len(photos))
	}
}

func TestMineListing(t *testing.T) {
	f := newFixture(t)
	f.seedBox(t, "sub-1")
	f.seedBox(t, "sub-2")
	f.recorder.Reset()

	f.text(t, "user:anna", "mine")
	photos := f.recorder.PhotosTo("user:anna")
	if len(photos) != 2 {
		t.Fatalf("got %d cards, want 2", len(photos))
	}

	f.recorder.Reset()
	f.text(t, "user:admin", "mine")
	if got := lastText(t, f.recorder, "user:admin"); !strings.Contains(got, "no registered boxes") {
		t.Errorf("empty mine reply = %q", got)
	}
}

func TestAddWorkerFlow(t *testing.T) {
	f := newFixture(t)
	f.text(t, "user:admin", "add worker")
	if got := lastText(t, f.recorder, "user:admin"); !strings.Contains(got, "user ID") {
		t.Fatalf("prompt = %q", got)
	}
	f.text(t, "user:admin", "user:new-worker")
	if got := lastText(t, f.recorder, "user:admin"); !strings.Contains(got, "added") {
		t.Fatalf("confirmation = %q", got)
	}

	workers, err := f.gateway.ListWorkers(context.Background())
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	found := false
	for _, worker := range workers {
		if worker == "user:new-worker" {
			found = true
		}
	}
	if !found {
		t.Errorf("workers = %v, want user:new-worker present", workers)
	}
}

func TestAddCollectorFlow(t *testing.T) {
	f := newFixture(t)
	f.text(t, "user:admin", "add collector")
	f.text(t, "user:admin", "user:pavel")
	if got := lastText(t, f.recorder, "user:admin"); !strings.Contains(got, "display name") {
		t.Fatalf("name prompt = %q", got)
	}
	f.text(t, "user:admin", "Pavel")
	if got := lastText(t, f.recorder, "user:admin"); !strings.Contains(got, "added") {
		t.Fatalf("confirmation = %q", got)
	}

	name, known, err := f.gateway.CollectorName(context.Background(), "user:pavel")
	if err != nil {
		t.Fatalf("CollectorName: %v", err)
	}
	if !known || name != "Pavel" {
		t.Errorf("CollectorName = (%q, %v), want (Pavel, true)", name, known)
	}

	// Re-adding reports the duplicate instead of appending.
	f.text(t, "user:admin", "add collector")
	f.text(t, "user:admin", "user:pavel")
	f.text(t, "user:admin", "Pavel Again")
	if got := lastText(t, f.recorder, "user:admin"); !strings.Contains(got, "already registered") {
		t.Errorf("duplicate reply = %q", got)
	}
}

func TestAddCollectorFlowConcurrentEventsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.text(t, "user:admin", "add collector")

	// Two events arrive at once for the same admin mid-flow. They must
	// serialize: one becomes the target user ID, the other the display
	// name, in whichever order the lock admits them.
	inputs := []string{"user:new", "New Collector"}
	var wg sync.WaitGroup
	for _, input := range inputs {
		wg.Add(1)
		go func(input string) {
			defer wg.Done()
			err := f.router.Dispatch(ctx, chat.Event{
				Kind: chat.EventText, User: "user:admin", Text: input,
			})
			if err != nil {
				t.Errorf("Dispatch(%q): %v", input, err)
			}
		}(input)
	}
	wg.Wait()

	collectors, err := f.gateway.ListCollectors(ctx)
	if err != nil {
		t.Fatalf("ListCollectors: %v", err)
	}
	if len(collectors) != 2 {
		t.Fatalf("got %d collectors, want the fixture's plus exactly 1", len(collectors))
	}
	added := collectors[1]
	ordered := added.ID == inputs[0] && added.Name == inputs[1]
	reversed := added.ID == inputs[1] && added.Name == inputs[0]
	if !ordered && !reversed {
		t.Errorf("added collector = %+v, want the two inputs as ID and name", added)
	}

	// The flow is over; the next message routes as a command again.
	f.text(t, "user:admin", "menu")
	if got := lastText(t, f.recorder, "user:admin"); !strings.Contains(got, "export") {
		t.Errorf("reply = %q, want admin menu", got)
	}
}

func TestAddFlowCancel(t *testing.T) {
	f := newFixture(t)
	f.text(t, "user:admin", "add worker")
	f.text(t, "user:admin", "cancel")
	if got := lastText(t, f.recorder, "user:admin"); !strings.Contains(got, "Cancelled") {
		t.Fatalf("reply = %q", got)
	}
	// The next message is a command again, not flow input.
	f.text(t, "user:admin", "menu")
	if got := lastText(t, f.recorder, "user:admin"); !strings.Contains(got, "export") {
		t.Errorf("reply = %q, want admin menu", got)
	}
}

func TestAdminFlowsDeniedForOthers(t *testing.T) {
	f := newFixture(t)
	for _, user := range []chat.UserID{"user:anna", "user:boris"} {
		f.text(t, user, "add collector")
		if got := lastText(t, f.recorder, user); strings.Contains(got, "user ID") {
			t.Errorf("%s reached the add-collector flow: %q", user, got)
		}
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	boxID := f.seedBox(t, "sub-1")
	f.seedBox(t, "sub-2")
	if err := f.gateway.UpdateStatus(context.Background(), boxID, box.StatusDone, "user:boris"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	f.text(t, "user:boris", "stats")
	got := lastText(t, f.recorder, "user:boris")
	for _, want := range []string{"2 total", "new: 1", "done: 1", "Anna: 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("stats = %q, want %q", got, want)
		}
	}
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	f.seedBox(t, "sub-1")

	f.text(t, "user:admin", "export")
	documents := f.recorder.Documents()
	if len(documents) != 1 {
		t.Fatalf("got %d documents, want 1", len(documents))
	}
	if !strings.HasPrefix(documents[0].Filename, "boxes_export_") {
		t.Errorf("filename = %q", documents[0].Filename)
	}
	if !strings.Contains(string(documents[0].Content), "B0001") {
		t.Errorf("export content missing the box row")
	}

	// Non-admins get no document.
	f.text(t, "user:boris", "export")
	if got := f.recorder.Documents(); len(got) != 1 {
		t.Errorf("worker export produced a document")
	}
}

func TestLedgerOutageReply(t *testing.T) {
	f := newFixture(t)
	f.seedBox(t, "sub-1")
	f.table.FailAll(errors.New("table offline"))

	f.text(t, "user:anna", "mine")
	if got := lastText(t, f.recorder, "user:anna"); !strings.Contains(got, "try again") {
		t.Errorf("outage reply = %q", got)
	}
}
