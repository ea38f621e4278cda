// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package roles classifies user identities. Admin membership is static
// configuration; worker and collector membership is re-read from the
// ledger on every resolution, so list changes propagate on the next
// interaction with no cache invalidation.
package roles

import (
	"context"
	"fmt"

	"github.com/boxline/boxline/ledger"
)

// Role is the classification of a user identity.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleWorker    Role = "worker"
	RoleCollector Role = "collector"
	RoleUnknown   Role = "unknown"
)

// MembershipSource supplies the dynamic membership lists. Satisfied by
// *ledger.Gateway.
type MembershipSource interface {
	ListWorkers(ctx context.Context) ([]string, error)
	ListCollectors(ctx context.Context) ([]ledger.Collector, error)
}

// UnauthorizedError reports that a user's role does not permit an
// action. Check with errors.As.
type UnauthorizedError struct {
	// User is the identity that was denied.
	User string
	// Action describes what was attempted.
	Action string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("roles: %s is not authorized to %s", e.User, e.Action)
}

// Resolver resolves identities to roles.
type Resolver struct {
	admins  map[string]bool
	members MembershipSource
}

// NewResolver constructs a Resolver. The admin set is fixed for the
// resolver's lifetime; dynamic lists come from members on every call.
func NewResolver(admins []string, members MembershipSource) *Resolver {
	adminSet := make(map[string]bool, len(admins))
	for _, admin := range admins {
		adminSet[admin] = true
	}
	return &Resolver{admins: adminSet, members: members}
}

// Resolve classifies identity. Precedence: admin, then worker, then
// collector, then unknown. A membership list read failure propagates
// as an error; defaulting to unknown during a ledger outage would
// silently lock out workers and collectors.
func (r *Resolver) Resolve(ctx context.Context, identity string) (Role, error) {
	if r.admins[identity] {
		return RoleAdmin, nil
	}

	workers, err := r.members.ListWorkers(ctx)
	if err != nil {
		return RoleUnknown, fmt.Errorf("roles: resolving %s: %w", identity, err)
	}
	for _, worker := range workers {
		if worker == identity {
			return RoleWorker, nil
		}
	}

	collectors, err := r.members.ListCollectors(ctx)
	if err != nil {
		return RoleUnknown, fmt.Errorf("roles: resolving %s: %w", identity, err)
	}
	for _, collector := range collectors {
		if collector.ID == identity {
			return RoleCollector, nil
		}
	}

	return RoleUnknown, nil
}
