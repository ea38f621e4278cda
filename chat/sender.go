// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "context"

// Sender is the outbound half of the transport boundary. All methods
// block until the transport acknowledges delivery or the context is
// done. A returned error means delivery to that one recipient failed;
// it says nothing about other recipients.
type Sender interface {
	// SendText delivers a text message, optionally with controls.
	SendText(ctx context.Context, to UserID, text string, controls ...Control) error

	// SendPhoto delivers a photo by reference with an optional
	// caption and controls.
	SendPhoto(ctx context.Context, to UserID, photo MediaRef, caption string, controls ...Control) error

	// SendDocument delivers a file as an attachment.
	SendDocument(ctx context.Context, to UserID, filename string, content []byte, caption string) error
}
