// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

// UserID identifies a chat user. Opaque to the core; the transport
// defines its shape.
type UserID string

// MediaRef is an opaque reference to a photo stored by the transport.
// The core never dereferences it, only passes it back on send.
type MediaRef string

// EventKind discriminates inbound events.
type EventKind string

const (
	// EventText is a plain text message.
	EventText EventKind = "text"

	// EventPhoto is a photo message; Event.Photo carries the reference.
	EventPhoto EventKind = "photo"

	// EventButton is a control invocation; Event.Control carries the
	// decoded payload.
	EventButton EventKind = "button"
)

// Event is one inbound unit of work from the transport.
type Event struct {
	// User is the sender.
	User UserID

	// Kind discriminates the payload fields below.
	Kind EventKind

	// Text is set for EventText.
	Text string

	// Photo is set for EventPhoto.
	Photo MediaRef

	// Control is set for EventButton.
	Control *ControlData
}

// Update is an inbound event with its transport sequence number, as
// delivered by Client.Updates. The caller acknowledges by passing the
// highest seen ID + 1 as the next offset.
type Update struct {
	ID    int64
	Event Event
}
