// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the transport boundary. The workflow engines consume
// it as interfaces: inbound Events (text, photo, button) and an
// outbound Sender. The concrete Client speaks a bot-API style HTTP
// protocol with long-poll update delivery; nothing above this package
// knows about HTTP, message formatting quirks, or how controls are
// rendered.
//
// Controls are opaque button sets the transport renders. The core
// attaches an (action, box ID) pair to each control and receives it
// back verbatim when the button is pressed; the pair travels as
// deterministic CBOR in base64url.
package chat
