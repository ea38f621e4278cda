// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package triage applies worker-initiated status transitions to boxes
// and notifies the originating collector.
package triage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/boxline/boxline/chat"
	"github.com/boxline/boxline/ledger"
	"github.com/boxline/boxline/lib/schema/box"
	"github.com/boxline/boxline/roles"
)

// Config holds the parameters for constructing an Engine.
type Config struct {
	// Gateway reads and mutates box records.
	Gateway *ledger.Gateway

	// Resolver gates who may transition boxes.
	Resolver *roles.Resolver

	// Sender delivers collector notifications.
	Sender chat.Sender

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine applies status transitions.
type Engine struct {
	gateway  *ledger.Gateway
	resolver *roles.Resolver
	sender   chat.Sender
	logger   *slog.Logger
}

// New constructs an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("triage: Gateway is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("triage: Resolver is required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("triage: Sender is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		gateway:  cfg.Gateway,
		resolver: cfg.Resolver,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
	}, nil
}

// ApplyTransition moves boxID to the status named by action on behalf
// of actorID and notifies the box's collector. It returns the status
// that was written.
//
// Transitions are not checked against the box's current status: a
// repeated press or a backward move simply overwrites the status and
// processing fields again. Unknown actions and unauthorized actors are
// rejected before any ledger mutation. Notification failure is logged
// and never surfaced; the status change stands on its own.
func (e *Engine) ApplyTransition(ctx context.Context, boxID, action, actorID string) (box.Status, error) {
	role, err := e.resolver.Resolve(ctx, actorID)
	if err != nil {
		return "", fmt.Errorf("resolving actor %s: %w", actorID, err)
	}
	if role != roles.RoleWorker && role != roles.RoleAdmin {
		return "", &roles.UnauthorizedError{User: actorID, Action: "change box status"}
	}

	status, ok := box.StatusForAction(action)
	if !ok {
		return "", fmt.Errorf("unknown transition action %q", action)
	}

	record, err := e.gateway.FindBox(ctx, boxID)
	if err != nil {
		return "", err
	}

	if err := e.gateway.UpdateStatus(ctx, boxID, status, actorID); err != nil {
		return "", err
	}

	e.notifyCollector(ctx, record, status, actorID)
	return status, nil
}

func (e *Engine) notifyCollector(ctx context.Context, record box.Record, status box.Status, actorID string) {
	if record.CollectorID == "" {
		return
	}
	body := fmt.Sprintf("Box %s is now %s (updated by %s).", record.ID, describeStatus(status), actorID)
	if err := e.sender.SendText(ctx, chat.UserID(record.CollectorID), body); err != nil {
		e.logger.Warn("collector notification failed",
			"box_id", record.ID, "collector", record.CollectorID, "error", err)
	}
}

func describeStatus(status box.Status) string {
	switch status {
	case box.StatusInProgress:
		return "in progress"
	case box.StatusDone:
		return "done"
	default:
		return string(status)
	}
}
