// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/base64"
	"fmt"

	"github.com/boxline/boxline/lib/codec"
)

// ControlData is the payload attached to a control. The transport
// returns it verbatim when the control is invoked.
type ControlData struct {
	// Action names the operation the control triggers.
	Action string `cbor:"a"`

	// BoxID is the box record the operation targets.
	BoxID string `cbor:"b"`
}

// Control is one button in a control set.
type Control struct {
	// Label is the text the transport renders on the button.
	Label string

	// Data rides along opaquely and comes back on invocation.
	Data ControlData
}

// maxEncodedControlData bounds the encoded payload. Transports cap
// callback payload size (Telegram's limit is 64 bytes); an (action,
// box ID) pair encodes well under that, so exceeding the cap means a
// programming error, not oversized user data.
const maxEncodedControlData = 64

// EncodeControlData renders data as base64url CBOR for the wire.
func EncodeControlData(data ControlData) (string, error) {
	raw, err := codec.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("chat: encoding control data: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	if len(encoded) > maxEncodedControlData {
		return "", fmt.Errorf("chat: control data %q/%q encodes to %d bytes, cap is %d",
			data.Action, data.BoxID, len(encoded), maxEncodedControlData)
	}
	return encoded, nil
}

// DecodeControlData parses a wire payload produced by EncodeControlData.
func DecodeControlData(encoded string) (ControlData, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ControlData{}, fmt.Errorf("chat: control data is not base64url: %w", err)
	}
	var data ControlData
	if err := codec.Unmarshal(raw, &data); err != nil {
		return ControlData{}, fmt.Errorf("chat: decoding control data: %w", err)
	}
	return data, nil
}
