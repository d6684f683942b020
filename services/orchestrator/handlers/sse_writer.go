// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
)

// SSEWriter streams chat events to the client as Server-Sent Events.
//
// # Description
//
// The client consumes data-only frames, each carrying one JSON-encoded
// StreamEvent:
//
//	data: {"type":"token","content":"Hel"}
//
//	data: {"type":"done","quickReplies":["Yes","No"]}
//
//	data: {"type":"persisted","messageId":"..."}
//
// Every write flushes immediately so tokens render as they arrive.
//
// # Thread Safety
//
// All methods are safe for concurrent use; writes are serialized by an
// internal mutex so frames never interleave.
type SSEWriter interface {
	// WriteEvent writes one event as a data frame and flushes.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteToken streams one token of assistant text.
	WriteToken(content string) error

	// WriteError reports a turn failure. The message is client-safe;
	// internals stay in the logs.
	WriteError(message string) error

	// WritePersisted confirms the assistant message was stored.
	WritePersisted(messageID string) error
}

// sseWriter is the standard implementation over http.ResponseWriter.
//
// # Assumptions
//
//   - SSE headers already set by the caller (SetSSEHeaders)
//   - ResponseWriter supports http.Flusher
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter creates an SSEWriter over w.
//
// # Outputs
//
//	SSEWriter - ready to write events.
//	error - non-nil if w does not support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.EventToken,
		Content: content,
	})
}

func (w *sseWriter) WriteError(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.EventError,
		Message: message,
	})
}

func (w *sseWriter) WritePersisted(messageID string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:      datatypes.EventPersisted,
		MessageID: messageID,
	})
}

// SetSSEHeaders sets the response headers required for SSE streaming.
// Must be called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
}

var _ SSEWriter = (*sseWriter)(nil)
