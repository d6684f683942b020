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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
)

// parseFrames splits an SSE body into its decoded data payloads.
func parseFrames(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		require.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
		var evt datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &evt))
		events = append(events, evt)
	}
	return events
}

func TestSSEWriter_FrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteToken("Hel"))
	require.NoError(t, w.WriteToken("lo"))
	require.NoError(t, w.WriteEvent(datatypes.StreamEvent{
		Type:         datatypes.EventDone,
		QuickReplies: []string{"Yes", "No"},
	}))
	require.NoError(t, w.WritePersisted("msg-1"))

	events := parseFrames(t, rec.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, datatypes.EventToken, events[0].Type)
	assert.Equal(t, "Hel", events[0].Content)
	assert.Equal(t, datatypes.EventDone, events[2].Type)
	assert.Equal(t, []string{"Yes", "No"}, events[2].QuickReplies)
	assert.Equal(t, datatypes.EventPersisted, events[3].Type)
	assert.Equal(t, "msg-1", events[3].MessageID)
}

func TestSSEWriter_TokenOmitsUnsetFields(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteToken("hi"))
	assert.Equal(t, "data: {\"type\":\"token\",\"content\":\"hi\"}\n\n", rec.Body.String())
}

func TestSSEWriter_Error(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteError("failed to save message"))
	events := parseFrames(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, datatypes.EventError, events[0].Type)
	assert.Equal(t, "failed to save message", events[0].Message)
}

func TestSetSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

// noFlushWriter is an http.ResponseWriter without Flush support.
type noFlushWriter struct{ header http.Header }

func (w *noFlushWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *noFlushWriter) Write(b []byte) (int, error) { return len(b), nil }

func (w *noFlushWriter) WriteHeader(int) {}

func TestNewSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(&noFlushWriter{})
	assert.Error(t, err)
}
