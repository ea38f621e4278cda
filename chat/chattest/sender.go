// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

// Package chattest provides a recording fake for the chat.Sender
// interface. Tests inspect what the engines sent and inject
// per-recipient delivery failures.
package chattest

import (
	"context"
	"sync"

	"github.com/boxline/boxline/chat"
)

// Text is a recorded SendText call.
type Text struct {
	To       chat.UserID
	Body     string
	Controls []chat.Control
}

// Photo is a recorded SendPhoto call.
type Photo struct {
	To       chat.UserID
	Ref      chat.MediaRef
	Caption  string
	Controls []chat.Control
}

// Document is a recorded SendDocument call.
type Document struct {
	To       chat.UserID
	Filename string
	Content  []byte
	Caption  string
}

// Recorder implements chat.Sender by recording every call. Safe for
// concurrent use.
type Recorder struct {
	mu        sync.Mutex
	texts     []Text
	photos    []Photo
	documents []Document
	failures  map[chat.UserID]error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{failures: make(map[chat.UserID]error)}
}

// FailDeliveryTo makes every send to user return err. The call is
// still recorded, mirroring a transport that accepted the request and
// then failed.
func (r *Recorder) FailDeliveryTo(user chat.UserID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[user] = err
}

// SendText implements chat.Sender.
func (r *Recorder) SendText(_ context.Context, to chat.UserID, body string, controls ...chat.Control) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, Text{To: to, Body: body, Controls: controls})
	return r.failures[to]
}

// SendPhoto implements chat.Sender.
func (r *Recorder) SendPhoto(_ context.Context, to chat.UserID, ref chat.MediaRef, caption string, controls ...chat.Control) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.photos = append(r.photos, Photo{To: to, Ref: ref, Caption: caption, Controls: controls})
	return r.failures[to]
}

// SendDocument implements chat.Sender.
func (r *Recorder) SendDocument(_ context.Context, to chat.UserID, filename string, content []byte, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append(r.documents, Document{To: to, Filename: filename, Content: content, Caption: caption})
	return r.failures[to]
}

// Texts returns a copy of the recorded text messages.
func (r *Recorder) Texts() []Text {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Text(nil), r.texts...)
}

// TextsTo returns the recorded text messages sent to user.
func (r *Recorder) TextsTo(user chat.UserID) []Text {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Text
	for _, text := range r.texts {
		if text.To == user {
			out = append(out, text)
		}
	}
	return out
}

// Photos returns a copy of the recorded photo messages.
func (r *Recorder) Photos() []Photo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Photo(nil), r.photos...)
}

// PhotosTo returns the recorded photo messages sent to user.
func (r *Recorder) PhotosTo(user chat.UserID) []Photo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Photo
	for _, photo := range r.photos {
		if photo.To == user {
			out = append(out, photo)
		}
	}
	return out
}

// Documents returns a copy of the recorded document messages.
func (r *Recorder) Documents() []Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Document(nil), r.documents...)
}

// Reset discards all recorded messages, keeping failure injections.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = nil
	r.photos = nil
	r.documents = nil
}
