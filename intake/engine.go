// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package intake drives a collector through box registration: photo
// collection, naming, dating, destination choice, confirmation, and
// submission. One draft per active user, held in memory only: a
// process restart drops in-flight drafts.
package intake

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/boxline/boxline/chat"
	"github.com/boxline/boxline/ledger"
	"github.com/boxline/boxline/lib/clock"
	"github.com/boxline/boxline/lib/schema/box"
	"github.com/boxline/boxline/roles"
)

// state is the workflow position of one active draft.
type state int

const (
	stateCollectingPhotos state = iota
	stateNaming
	stateDateChoice
	stateManualDate
	stateDestination
	stateConfirming
)

// Keywords the workflow recognizes. Matching is case-insensitive
// after trimming.
const (
	keywordDone    = "done"
	keywordCancel  = "cancel"
	keywordToday   = "today"
	keywordManual  = "manual"
	keywordConfirm = "confirm"
)

// draft accumulates the box record across turns.
type draft struct {
	photoRefs     []string
	collectorName string
	boxDate       string
	destination   box.Destination

	// submissionID is minted when the draft reaches confirmation. A
	// retried confirm reuses it, so the gateway can suppress a
	// duplicate append.
	submissionID string
}

// session is one user's active workflow. Its mutex serializes event
// handling per user: two concurrent events for the same user must not
// interleave draft mutation. No lock is shared across users.
type session struct {
	mu    sync.Mutex
	state state
	draft draft
}

// Config holds the parameters for constructing an Engine.
type Config struct {
	// Gateway persists submitted drafts and supplies membership lists.
	Gateway *ledger.Gateway

	// Resolver guards workflow entry.
	Resolver *roles.Resolver

	// Sender delivers prompts and notifications.
	Sender chat.Sender

	// Clock supplies "today" for the date default. Defaults to Real().
	Clock clock.Clock

	// Logger receives fan-out failures. Defaults to slog.Default().
	Logger *slog.Logger

	// IdleMenu, when set, is invoked after a workflow terminates
	// (submission or cancellation) to show the user their idle menu.
	IdleMenu func(ctx context.Context, user chat.UserID)
}

// Engine runs the intake workflow for all users.
type Engine struct {
	gateway  *ledger.Gateway
	resolver *roles.Resolver
	sender   chat.Sender
	clock    clock.Clock
	logger   *slog.Logger
	idleMenu func(ctx context.Context, user chat.UserID)

	// mu guards sessions. Session mutation happens under the
	// individual session's own lock.
	mu       sync.Mutex
	sessions map[chat.UserID]*session
}

// New constructs an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("intake: Gateway is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("intake: Resolver is required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("intake: Sender is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		gateway:  cfg.Gateway,
		resolver: cfg.Resolver,
		sender:   cfg.Sender,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		idleMenu: cfg.IdleMenu,
		sessions: make(map[chat.UserID]*session),
	}, nil
}

// Active reports whether user has a workflow in progress.
func (e *Engine) Active(user chat.UserID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[user]
	return ok
}

// Start begins a new workflow for user. Only collectors and admins
// may enter; everyone else gets a roles.UnauthorizedError and no
// session is created. Starting over an existing session discards its
// draft and begins fresh.
func (e *Engine) Start(ctx context.Context, user chat.UserID) error {
	role, err := e.resolver.Resolve(ctx, string(user))
	if err != nil {
		return err
	}
	if role != roles.RoleCollector && role != roles.RoleAdmin {
		return &roles.UnauthorizedError{User: string(user), Action: "register a box"}
	}

	e.mu.Lock()
	e.sessions[user] = &session{state: stateCollectingPhotos}
	e.mu.Unlock()

	e.send(ctx, user, "Send one or more photos of the box. Send 'done' when finished, or 'cancel' to abort.")
	return nil
}

// HandleEvent advances user's workflow by one event. The caller must
// have confirmed the workflow is active; events for users without a
// session are ignored with an error.
func (e *Engine) HandleEvent(ctx context.Context, event chat.Event) error {
	e.mu.Lock()
	active := e.sessions[event.User]
	e.mu.Unlock()
	if active == nil {
		return fmt.Errorf("intake: no active workflow for %s", event.User)
	}

	active.mu.Lock()
	defer active.mu.Unlock()

	// The session may have been evicted between the map read and the
	// lock acquisition (concurrent cancel). Re-check.
	e.mu.Lock()
	current := e.sessions[event.User]
	e.mu.Unlock()
	if current != active {
		return nil
	}

	keyword := strings.ToLower(strings.TrimSpace(event.Text))
	if event.Kind == chat.EventText && keyword == keywordCancel {
		e.cancel(ctx, event.User)
		return nil
	}

	switch active.state {
	case stateCollectingPhotos:
		e.handlePhotos(ctx, event, active, keyword)
	case stateNaming:
		e.handleNaming(ctx, event, active)
	case stateDateChoice:
		e.handleDateChoice(ctx, event, active, keyword)
	case stateManualDate:
		e.handleManualDate(ctx, event, active)
	case stateDestination:
		e.handleDestination(ctx, event, active)
	case stateConfirming:
		e.handleConfirming(ctx, event, active, keyword)
	}
	return nil
}

func (e *Engine) cancel(ctx context.Context, user chat.UserID) {
	e.evict(user)
	e.send(ctx, user, "Box registration cancelled.")
	if e.idleMenu != nil {
		e.idleMenu(ctx, user)
	}
}

func (e *Engine) evict(user chat.UserID) {
	e.mu.Lock()
	delete(e.sessions, user)
	e.mu.Unlock()
}

func (e *Engine) handlePhotos(ctx context.Context, event chat.Event, active *session, keyword string) {
	switch {
	case event.Kind == chat.EventPhoto:
		active.draft.photoRefs = append(active.draft.photoRefs, string(event.Photo))
		e.send(ctx, event.User, "Photo received. Send another, or 'done' to continue.")

	case event.Kind == chat.EventText && keyword == keywordDone:
		if len(active.draft.photoRefs) == 0 {
			e.send(ctx, event.User, "No photos yet. Send at least one photo of the box.")
			return
		}
		// Elide the naming step when the collectors list already has
		// a display name for this user.
		name, known, err := e.gateway.CollectorName(ctx, string(event.User))
		if err != nil {
			e.logger.Warn("collector name lookup failed, asking explicitly",
				"user", event.User, "error", err)
		}
		if known && name != "" {
			active.draft.collectorName = name
			active.state = stateDateChoice
			e.promptDateChoice(ctx, event.User)
			return
		}
		active.state = stateNaming
		e.send(ctx, event.User, "Enter the collector's display name:")

	default:
		e.send(ctx, event.User, "Expecting a photo, 'done', or 'cancel'.")
	}
}

func (e *Engine) handleNaming(ctx context.Context, event chat.Event, active *session) {
	name := strings.TrimSpace(event.Text)
	if event.Kind != chat.EventText || name == "" {
		e.send(ctx, event.User, "Please enter a non-empty name.")
		return
	}
	active.draft.collectorName = name
	active.state = stateDateChoice
	e.promptDateChoice(ctx, event.User)
}

func (e *Engine) promptDateChoice(ctx context.Context, user chat.UserID) {
	e.send(ctx, user, "Choose the box date: send 'today' or 'manual'.")
}

func (e *Engine) handleDateChoice(ctx context.Context, event chat.Event, active *session, keyword string) {
	switch {
	case event.Kind == chat.EventText && keyword == keywordToday:
		active.draft.boxDate = e.clock.Now().UTC().Format(box.DateFormat)
		active.state = stateDestination
		e.promptDestination(ctx, event.User, active.draft.boxDate)

	case event.Kind == chat.EventText && keyword == keywordManual:
		active.state = stateManualDate
		e.send(ctx, event.User, "Enter the date as YYYY-MM-DD (for example 2025-12-06), or 'cancel'.")

	default:
		e.send(ctx, event.User, "Send 'today', 'manual', or 'cancel'.")
	}
}

func (e *Engine) handleManualDate(ctx context.Context, event chat.Event, active *session) {
	if event.Kind != chat.EventText {
		e.send(ctx, event.User, "Expecting a date as YYYY-MM-DD, or 'cancel'.")
		return
	}
	date, err := box.ParseDate(event.Text)
	if err != nil {
		// Reject and re-prompt; previously collected fields stay.
		e.send(ctx, event.User, "That is not a valid date. Use YYYY-MM-DD (for example 2025-12-06), or 'cancel'.")
		return
	}
	active.draft.boxDate = date
	active.state = stateDestination
	e.promptDestination(ctx, event.User, date)
}

func (e *Engine) promptDestination(ctx context.Context, user chat.UserID, date string) {
	e.send(ctx, user, fmt.Sprintf("Date set: %s\nChoose the destination lane: A, B, or C.", date))
}

func (e *Engine) handleDestination(ctx context.Context, event chat.Event, active *session) {
	if event.Kind != chat.EventText {
		e.send(ctx, event.User, "Choose the destination lane: A, B, or C (or 'cancel').")
		return
	}
	destination, err := box.ParseDestination(event.Text)
	if err != nil {
		e.send(ctx, event.User, "Choose A, B, or C (or 'cancel').")
		return
	}
	active.draft.destination = destination
	active.draft.submissionID = newSubmissionID()
	active.state = stateConfirming

	e.send(ctx, event.User, fmt.Sprintf(
		"Confirm the box:\nCollector: %s\nDate: %s\nDestination: %s\nPhotos: %d\n\nSend 'confirm' to register, or 'cancel' to abort.",
		active.draft.collectorName, active.draft.boxDate, active.draft.destination, len(active.draft.photoRefs)))
}

func (e *Engine) handleConfirming(ctx context.Context, event chat.Event, active *session, keyword string) {
	if event.Kind != chat.EventText || keyword != keywordConfirm {
		e.send(ctx, event.User, "Send 'confirm' to register the box, or 'cancel' to abort.")
		return
	}
	e.submit(ctx, event.User, active)
}

// submit persists the draft and fans out worker notifications. The
// record's existence is never contingent on notification delivery:
// once CreateBox succeeds the workflow is complete, whatever happens
// to the sends.
func (e *Engine) submit(ctx context.Context, user chat.UserID, active *session) {
	record := box.Record{
		PhotoRefs:     active.draft.photoRefs,
		CollectorID:   string(user),
		CollectorName: active.draft.collectorName,
		BoxDate:       active.draft.boxDate,
		Destination:   active.draft.destination,
		SubmissionID:  active.draft.submissionID,
	}

	boxID, err := e.gateway.CreateBox(ctx, record)
	if err != nil {
		if ledger.IsUnavailable(err) {
			// Draft and submission ID stay; a repeated confirm
			// retries safely thanks to duplicate suppression.
			e.logger.Warn("box submission failed, ledger unavailable", "user", user, "error", err)
			e.send(ctx, user, "The ledger is unreachable. Send 'confirm' again to retry, or 'cancel'.")
			return
		}
		e.logger.Error("box submission rejected", "user", user, "error", err)
		e.send(ctx, user, "The box could not be registered. Send 'confirm' to retry, or 'cancel'.")
		return
	}

	e.send(ctx, user, fmt.Sprintf("Box %s registered. Notifying warehouse workers.", boxID))
	e.notifyWorkers(ctx, boxID, record)

	e.evict(user)
	if e.idleMenu != nil {
		e.idleMenu(ctx, user)
	}
}

// notifyWorkers delivers the new box to every registered worker:
// first photo with the caption and transition controls, then the
// remaining photos. Best-effort per recipient: one worker's failure
// neither aborts delivery to the rest nor rolls anything back.
func (e *Engine) notifyWorkers(ctx context.Context, boxID string, record box.Record) {
	workers, err := e.gateway.ListWorkers(ctx)
	if err != nil {
		e.logger.Error("worker list unavailable, skipping notifications",
			"box_id", boxID, "error", err)
		return
	}

	caption := fmt.Sprintf("New box %s\nCollector: %s\nDate: %s\nDestination: %s\nSubmitted by: %s",
		boxID, record.CollectorName, record.BoxDate, record.Destination, record.CollectorID)
	controls := TransitionControls(boxID)

	for _, worker := range workers {
		to := chat.UserID(worker)
		if err := e.sender.SendPhoto(ctx, to, chat.MediaRef(record.PhotoRefs[0]), caption, controls...); err != nil {
			e.logger.Warn("worker notification failed",
				"box_id", boxID, "worker", worker, "error", err)
			continue
		}
		for _, ref := range record.PhotoRefs[1:] {
			if err := e.sender.SendPhoto(ctx, to, chat.MediaRef(ref), ""); err != nil {
				e.logger.Warn("worker photo delivery failed",
					"box_id", boxID, "worker", worker, "error", err)
				break
			}
		}
	}
}

// TransitionControls builds the control set workers use to advance a
// box's status.
func TransitionControls(boxID string) []chat.Control {
	return []chat.Control{
		{Label: "In progress", Data: chat.ControlData{Action: box.ActionMarkInProgress, BoxID: boxID}},
		{Label: "Done", Data: chat.ControlData{Action: box.ActionMarkDone, BoxID: boxID}},
	}
}

// send delivers a workflow prompt. Prompt delivery failures are
// logged, not propagated: the session stays consistent and the user
// can retry their input.
func (e *Engine) send(ctx context.Context, user chat.UserID, text string) {
	if err := e.sender.SendText(ctx, user, text); err != nil {
		e.logger.Warn("prompt delivery failed", "user", user, "error", err)
	}
}

func newSubmissionID() string {
	// Matches crypto/rand.Text (go1.24): 26 chars of the standard
	// RFC 4648 base32 alphabet, >=128 bits of randomness.
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	b := make([]byte, 26)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		b[i] = alphabet[b[i]%32]
	}
	return string(b)
}
