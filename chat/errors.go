// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"fmt"
)

// ServerError is a structured error response from the transport
// server. Callers use errors.As to extract it:
//
//	var serverErr *chat.ServerError
//	if errors.As(err, &serverErr) {
//	    if serverErr.Code == chat.ErrCodeRecipientUnknown { ... }
//	}
type ServerError struct {
	// Code is the transport error code.
	Code string `json:"code"`

	// Description is the human-readable error from the server.
	Description string `json:"description"`

	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`

	// RetryAfter is the server-suggested backoff in seconds when the
	// request was rate limited, zero otherwise.
	RetryAfter int `json:"retry_after,omitempty"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("chat: %s (%d): %s", e.Code, e.StatusCode, e.Description)
}

// Transport error codes.
const (
	ErrCodeRecipientUnknown = "RECIPIENT_UNKNOWN"
	ErrCodeRecipientBlocked = "RECIPIENT_BLOCKED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
)

// IsServerError checks whether err is a *ServerError with the given code.
func IsServerError(err error, code string) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Code == code
	}
	return false
}
