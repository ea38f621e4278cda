// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package router dispatches inbound chat events to the intake and
// triage engines and handles the idle-state commands: menus, listings,
// membership administration, stats, and export.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/boxline/boxline/chat"
	"github.com/boxline/boxline/intake"
	"github.com/boxline/boxline/ledger"
	"github.com/boxline/boxline/lib/schema/box"
	"github.com/boxline/boxline/roles"
	"github.com/boxline/boxline/triage"
)

const ledgerTroubleMessage = "The ledger is unreachable right now. Please try again in a moment."

// adminFlowKind discriminates the two membership mini-flows.
type adminFlowKind int

const (
	flowAddCollector adminFlowKind = iota
	flowAddWorker
)

// adminFlow is an in-progress membership addition. Admin-only and
// in-memory, like intake drafts. Its mutex serializes event handling
// per admin: two concurrent events mid-flow must not interleave flow
// mutation.
type adminFlow struct {
	mu   sync.Mutex
	kind adminFlowKind

	// pendingID is set once the target user ID has been received and
	// the flow is waiting for a display name (collectors only).
	pendingID string
}

// Config holds the parameters for constructing a Router.
type Config struct {
	Gateway  *ledger.Gateway
	Resolver *roles.Resolver
	Intake   *intake.Engine
	Triage   *triage.Engine
	Sender   chat.Sender

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Router dispatches events. One Router serves all users; per-user
// workflow serialization lives in the engines.
type Router struct {
	gateway  *ledger.Gateway
	resolver *roles.Resolver
	intake   *intake.Engine
	triage   *triage.Engine
	sender   chat.Sender
	logger   *slog.Logger

	mu    sync.Mutex
	flows map[chat.UserID]*adminFlow
}

// New constructs a Router.
func New(cfg Config) (*Router, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("router: Gateway is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("router: Resolver is required")
	}
	if cfg.Intake == nil {
		return nil, fmt.Errorf("router: Intake is required")
	}
	if cfg.Triage == nil {
		return nil, fmt.Errorf("router: Triage is required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("router: Sender is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		gateway:  cfg.Gateway,
		resolver: cfg.Resolver,
		intake:   cfg.Intake,
		triage:   cfg.Triage,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
		flows:    make(map[chat.UserID]*adminFlow),
	}, nil
}

// Dispatch routes one inbound event. Errors are handled by replying to
// the sender; Dispatch itself returns an error only for failures worth
// a log line in the caller's loop.
func (r *Router) Dispatch(ctx context.Context, event chat.Event) error {
	if event.Kind == chat.EventButton {
		r.handleButton(ctx, event)
		return nil
	}

	if r.intake.Active(event.User) {
		return r.intake.HandleEvent(ctx, event)
	}

	if r.activeFlow(event.User) != nil {
		r.handleAdminFlow(ctx, event)
		return nil
	}

	r.handleCommand(ctx, event)
	return nil
}

// ShowMenu sends user their role-appropriate idle menu. Exposed so the
// intake engine can restore the menu after a workflow ends.
func (r *Router) ShowMenu(ctx context.Context, user chat.UserID) {
	role, err := r.resolver.Resolve(ctx, string(user))
	if err != nil {
		r.reply(ctx, user, ledgerTroubleMessage)
		return
	}
	r.reply(ctx, user, menuFor(role))
}

func menuFor(role roles.Role) string {
	switch role {
	case roles.RoleAdmin:
		return "Commands: new (register a box), mine, pending, stats, export, add collector, add worker."
	case roles.RoleWorker:
		return "Commands: pending (boxes awaiting processing), stats."
	case roles.RoleCollector:
		return "Commands: new (register a box), mine (your boxes)."
	default:
		return "This service registers warehouse boxes. You are not registered; ask an administrator to add you."
	}
}

func (r *Router) handleButton(ctx context.Context, event chat.Event) {
	if event.Control == nil {
		r.logger.Warn("button event without control payload", "user", event.User)
		return
	}
	status, err := r.triage.ApplyTransition(ctx, event.Control.BoxID, event.Control.Action, string(event.User))
	if err != nil {
		var unauthorized *roles.UnauthorizedError
		switch {
		case errors.As(err, &unauthorized):
			r.reply(ctx, event.User, "You are not allowed to change box status.")
		case errors.Is(err, ledger.ErrNotFound):
			r.reply(ctx, event.User, fmt.Sprintf("Box %s is not in the ledger.", event.Control.BoxID))
		case ledger.IsUnavailable(err):
			r.reply(ctx, event.User, ledgerTroubleMessage)
		default:
			r.logger.Error("transition failed", "box_id", event.Control.BoxID,
				"action", event.Control.Action, "user", event.User, "error", err)
			r.reply(ctx, event.User, "That action could not be applied.")
		}
		return
	}
	r.reply(ctx, event.User, fmt.Sprintf("Box %s marked %s.", event.Control.BoxID, status))
}

func (r *Router) handleCommand(ctx context.Context, event chat.Event) {
	if event.Kind != chat.EventText {
		r.ShowMenu(ctx, event.User)
		return
	}

	role, err := r.resolver.Resolve(ctx, string(event.User))
	if err != nil {
		r.reply(ctx, event.User, ledgerTroubleMessage)
		return
	}

	switch normalize(event.Text) {
	case "/start", "start", "menu", "help":
		r.reply(ctx, event.User, menuFor(role))

	case "new", "new box":
		r.startIntake(ctx, event.User)

	case "mine", "my boxes":
		if role != roles.RoleCollector && role != roles.RoleAdmin {
			r.reply(ctx, event.User, menuFor(role))
			return
		}
		r.listMine(ctx, event.User)

	case "pending":
		if role != roles.RoleWorker && role != roles.RoleAdmin {
			r.reply(ctx, event.User, menuFor(role))
			return
		}
		r.listPending(ctx, event.User)

	case "stats":
		if role != roles.RoleWorker && role != roles.RoleAdmin {
			r.reply(ctx, event.User, menuFor(role))
			return
		}
		r.sendStats(ctx, event.User)

	case "export":
		if role != roles.RoleAdmin {
			r.reply(ctx, event.User, menuFor(role))
			return
		}
		r.sendExport(ctx, event.User)

	case "add collector":
		if role != roles.RoleAdmin {
			r.reply(ctx, event.User, menuFor(role))
			return
		}
		r.startFlow(event.User, flowAddCollector)
		r.reply(ctx, event.User, "Send the new collector's user ID, or 'cancel'.")

	case "add worker":
		if role != roles.RoleAdmin {
			r.reply(ctx, event.User, menuFor(role))
			return
		}
		r.startFlow(event.User, flowAddWorker)
		r.reply(ctx, event.User, "Send the new worker's user ID, or 'cancel'.")

	default:
		r.reply(ctx, event.User, menuFor(role))
	}
}

func (r *Router) startIntake(ctx context.Context, user chat.UserID) {
	err := r.intake.Start(ctx, user)
	if err == nil {
		return
	}
	var unauthorized *roles.UnauthorizedError
	switch {
	case errors.As(err, &unauthorized):
		r.reply(ctx, user, "Only collectors can register boxes.")
	case ledger.IsUnavailable(err):
		r.reply(ctx, user, ledgerTroubleMessage)
	default:
		r.logger.Error("intake start failed", "user", user, "error", err)
		r.reply(ctx, user, "Box registration could not be started.")
	}
}

func (r *Router) listMine(ctx context.Context, user chat.UserID) {
	records, err := r.gateway.ListBoxesByCollector(ctx, string(user))
	if err != nil {
		r.reply(ctx, user, ledgerTroubleMessage)
		return
	}
	if len(records) == 0 {
		r.reply(ctx, user, "You have no registered boxes.")
		return
	}
	for _, record := range records {
		caption := fmt.Sprintf("Box %s\nDate: %s\nDestination: %s\nStatus: %s",
			record.ID, record.BoxDate, record.Destination, record.Status)
		if record.ProcessedBy != "" {
			caption += fmt.Sprintf("\nProcessed by: %s", record.ProcessedBy)
		}
		r.sendCard(ctx, user, record, caption)
	}
}

func (r *Router) listPending(ctx context.Context, user chat.UserID) {
	records, err := r.gateway.ListPendingBoxes(ctx)
	if err != nil {
		r.reply(ctx, user, ledgerTroubleMessage)
		return
	}
	if len(records) == 0 {
		r.reply(ctx, user, "No boxes are awaiting processing.")
		return
	}
	for _, record := range records {
		caption := fmt.Sprintf("Box %s\nCollector: %s\nDate: %s\nDestination: %s\nStatus: %s",
			record.ID, record.CollectorName, record.BoxDate, record.Destination, record.Status)
		r.sendCard(ctx, user, record, caption, intake.TransitionControls(record.ID)...)
	}
}

// sendCard delivers one box as a photo with caption. When the record
// carries no photos, or the photo send fails (expired media reference,
// transport refusal), the caption goes out as plain text so the
// listing stays complete.
func (r *Router) sendCard(ctx context.Context, user chat.UserID, record box.Record, caption string, controls ...chat.Control) {
	if len(record.PhotoRefs) > 0 {
		err := r.sender.SendPhoto(ctx, user, chat.MediaRef(record.PhotoRefs[0]), caption, controls...)
		if err == nil {
			return
		}
		r.logger.Warn("box card photo delivery failed, falling back to text",
			"box_id", record.ID, "user", user, "error", err)
	}
	if err := r.sender.SendText(ctx, user, caption, controls...); err != nil {
		r.logger.Warn("box card delivery failed", "box_id", record.ID, "user", user, "error", err)
	}
}

func (r *Router) sendStats(ctx context.Context, user chat.UserID) {
	stats, err := r.gateway.Stats(ctx)
	if err != nil {
		r.reply(ctx, user, ledgerTroubleMessage)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Boxes: %d total\n", stats.Total)
	fmt.Fprintf(&b, "  new: %d\n", stats.ByStatus[box.StatusNew])
	fmt.Fprintf(&b, "  in progress: %d\n", stats.ByStatus[box.StatusInProgress])
	fmt.Fprintf(&b, "  done: %d", stats.ByStatus[box.StatusDone])
	for name, count := range stats.ByCollector {
		fmt.Fprintf(&b, "\n%s: %d", name, count)
	}
	r.reply(ctx, user, b.String())
}

func (r *Router) sendExport(ctx context.Context, user chat.UserID) {
	filename, content, err := r.gateway.ExportCSV(ctx)
	if err != nil {
		r.reply(ctx, user, ledgerTroubleMessage)
		return
	}
	if err := r.sender.SendDocument(ctx, user, filename, content, "Full box ledger export."); err != nil {
		r.logger.Warn("export delivery failed", "user", user, "error", err)
	}
}

func (r *Router) startFlow(user chat.UserID, kind adminFlowKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[user] = &adminFlow{kind: kind}
}

func (r *Router) activeFlow(user chat.UserID) *adminFlow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flows[user]
}

func (r *Router) endFlow(user chat.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, user)
}

func (r *Router) handleAdminFlow(ctx context.Context, event chat.Event) {
	flow := r.activeFlow(event.User)
	if flow == nil {
		return
	}

	flow.mu.Lock()
	defer flow.mu.Unlock()

	// The flow may have completed between the map read and the lock
	// acquisition (concurrent event finished it). Re-check.
	if r.activeFlow(event.User) != flow {
		return
	}

	input := strings.TrimSpace(event.Text)
	if event.Kind != chat.EventText || input == "" {
		r.reply(ctx, event.User, "Send a user ID, or 'cancel'.")
		return
	}
	if normalize(input) == "cancel" {
		r.endFlow(event.User)
		r.reply(ctx, event.User, "Cancelled.")
		return
	}

	switch flow.kind {
	case flowAddWorker:
		r.endFlow(event.User)
		added, err := r.gateway.AddWorker(ctx, input)
		switch {
		case err != nil:
			r.reply(ctx, event.User, ledgerTroubleMessage)
		case added:
			r.reply(ctx, event.User, fmt.Sprintf("Worker %s added.", input))
		default:
			r.reply(ctx, event.User, fmt.Sprintf("Worker %s is already registered.", input))
		}

	case flowAddCollector:
		if flow.pendingID == "" {
			flow.pendingID = input
			r.reply(ctx, event.User, "Send the collector's display name:")
			return
		}
		r.endFlow(event.User)
		added, err := r.gateway.AddCollector(ctx, flow.pendingID, input)
		switch {
		case err != nil:
			r.reply(ctx, event.User, ledgerTroubleMessage)
		case added:
			r.reply(ctx, event.User, fmt.Sprintf("Collector %s (%s) added.", flow.pendingID, input))
		default:
			r.reply(ctx, event.User, fmt.Sprintf("Collector %s is already registered.", flow.pendingID))
		}
	}
}

func (r *Router) reply(ctx context.Context, user chat.UserID, body string) {
	if err := r.sender.SendText(ctx, user, body); err != nil {
		r.logger.Warn("reply delivery failed", "user", user, "error", err)
	}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
