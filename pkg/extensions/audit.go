// Copyright (C) 2025 Casewise (engineering@casewise.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// AuditEvent represents a security-relevant event for compliance logging.
//
// This struct captures the information needed for security audits and
// incident investigation.
//
// # Event Categories
//
// Events are categorized by type for filtering and alerting:
//   - Authentication: "auth.failed"
//   - Chat: "ai_message_received", "ai_message_sent", "chat.blocked"
//   - System: "system.error"
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "ai_message_sent",
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       authInfo.UserID,
//	    Action:       "send",
//	    ResourceType: "message",
//	    ResourceID:   messageID,
//	    Outcome:      "success",
//	    Metadata: map[string]any{
//	        "conversation_id": conversationID,
//	        "mode":            "request_consultation",
//	    },
//	}
type AuditEvent struct {
	// EventType categorizes the event for filtering and alerting.
	EventType string

	// Timestamp is when the event occurred (always use UTC).
	// If zero, implementations should set to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies who performed the action.
	// Use "system" for automated actions, "anonymous" if unknown.
	UserID string

	// Action describes what operation was attempted.
	// Common values: "send", "receive", "read", "write"
	Action string

	// ResourceType is the category of resource involved.
	// Examples: "message", "conversation", "practice"
	ResourceType string

	// ResourceID is the specific resource instance (optional).
	ResourceID string

	// Outcome indicates the result of the action.
	// Values: "success", "failure", "blocked", "error"
	Outcome string

	// Metadata holds additional event-specific data.
	Metadata map[string]any
}

// Well-known event types emitted by the chat orchestrator.
const (
	// EventAIMessageReceived marks an inbound user turn accepted for
	// processing.
	EventAIMessageReceived = "ai_message_received"

	// EventAIMessageSent marks an assistant reply persisted and
	// delivered.
	EventAIMessageSent = "ai_message_sent"
)

// AuditLogger records security-relevant events for compliance and analysis.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// The Log method should be non-blocking or have reasonable timeouts to
// avoid impacting request latency; callers treat logging as best-effort.
//
// # Open Source Behavior
//
// The default NopAuditLogger discards all events.
//
// # Hosted Implementation
//
// Hosted versions send events to the platform's event warehouse.
type AuditLogger interface {
	// Log records a single audit event.
	//
	// Implementations should populate Timestamp if zero and must not
	// mutate the event after returning.
	Log(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger is the default audit logger for open source.
//
// Thread-safe: this implementation has no mutable state.
type NopAuditLogger struct{}

// Log discards the event and returns nil.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

var _ AuditLogger = (*NopAuditLogger)(nil)
