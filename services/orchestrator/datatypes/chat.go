// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ===== Limits =====

const (
	// MaxMessagesPerRequest caps the transcript window a caller may replay.
	MaxMessagesPerRequest = 40

	// MaxMessageContentChars caps a single message body.
	MaxMessageContentChars = 2000

	// MaxTotalContentChars caps the aggregate transcript payload.
	MaxTotalContentChars = 12000

	// MaxQuickReplies caps suggested replies surfaced to the client.
	MaxQuickReplies = 3
)

// ===== Conversation modes =====

// ConversationMode selects which assistant behavior drives a conversation.
type ConversationMode string

const (
	ModeGeneralQA           ConversationMode = "general_qa"
	ModeRequestConsultation ConversationMode = "request_consultation"
	ModePracticeOnboarding  ConversationMode = "practice_onboarding"
)

// ParseConversationMode maps a client-supplied mode string onto a known
// mode. Unknown or empty values return ("", false) so callers fall back to
// stored conversation state rather than trusting the wire value.
func ParseConversationMode(s string) (ConversationMode, bool) {
	switch ConversationMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeGeneralQA:
		return ModeGeneralQA, true
	case ModeRequestConsultation:
		return ModeRequestConsultation, true
	case ModePracticeOnboarding:
		return ModePracticeOnboarding, true
	default:
		return "", false
	}
}

// ===== Request types =====

// ChatMessage is one turn of the replayed transcript.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatRequest
//
// # Description
//
//	Inbound body for POST /api/ai/chat. The client replays the visible
//	transcript window on every turn; the server owns mode resolution and
//	all durable state, so Mode and IntakeSubmitted are hints that are
//	cross-checked against stored conversation metadata.
type ChatRequest struct {
	ConversationID    string        `json:"conversationId" validate:"required,uuid4"`
	PracticeSlug      string        `json:"practiceSlug,omitempty"`
	Mode              string        `json:"mode,omitempty"`
	IntakeSubmitted   bool          `json:"intakeSubmitted,omitempty"`
	Messages          []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	AdditionalContext string        `json:"additionalContext,omitempty" validate:"omitempty,max=4000"`
}

var chatValidate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural tags first, then the size limits that the tag
// syntax cannot express (aggregate size across messages). Errors name the
// violated limit so the handler can return them verbatim as a 400.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	if len(r.Messages) > MaxMessagesPerRequest {
		return fmt.Errorf("too many messages: %d exceeds limit of %d", len(r.Messages), MaxMessagesPerRequest)
	}
	total := 0
	for i, m := range r.Messages {
		n := len(m.Content)
		if n > MaxMessageContentChars {
			return fmt.Errorf("message %d exceeds %d character limit", i, MaxMessageContentChars)
		}
		total += n
	}
	if total > MaxTotalContentChars {
		return fmt.Errorf("total message content exceeds %d character limit", MaxTotalContentChars)
	}
	return nil
}

// LastUserMessage returns the content of the most recent user turn, or ""
// when the transcript holds none.
func (r *ChatRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// ===== Stream events =====

// StreamEventType discriminates the SSE frames emitted to the client.
type StreamEventType string

const (
	EventToken     StreamEventType = "token"
	EventDone      StreamEventType = "done"
	EventPersisted StreamEventType = "persisted"
	EventError     StreamEventType = "error"
)

// StreamEvent is the union payload written as one SSE data frame.
// Only the fields relevant to the event type are populated; everything
// else is omitted from the encoded JSON.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`

	// done-event payloads
	IntakeFields      *IntakeFields      `json:"intakeFields,omitempty"`
	OnboardingFields  *OnboardingFields  `json:"onboardingFields,omitempty"`
	OnboardingProfile *OnboardingProfile `json:"onboardingProfile,omitempty"`
	QuickReplies      []string           `json:"quickReplies,omitempty"`
	TriggerEditModal  string             `json:"triggerEditModal,omitempty"`

	// persisted-event payload
	MessageID string `json:"messageId,omitempty"`

	// error-event payload
	Message string `json:"message,omitempty"`
}

// ===== Message metadata =====

// MessageMetadata rides on persisted assistant messages so the client can
// re-render affordances (CTAs, mode selector, quick replies) from history.
type MessageMetadata struct {
	AIGenerated    bool             `json:"aiGenerated"`
	Mode           ConversationMode `json:"mode,omitempty"`
	IntakeReadyCta bool             `json:"intakeReadyCta,omitempty"`
	ModeSelector   bool             `json:"modeSelector,omitempty"`
	QuickReplies   []string         `json:"quickReplies,omitempty"`
}

// ConversationMetadata is the durable per-conversation state bag. The
// intake state here is the single source of truth; per-turn deltas from
// the model are merged into it, never the other way around.
type ConversationMetadata struct {
	AIMode          ConversationMode `json:"aiMode,omitempty"`
	PracticeID      string           `json:"practiceId,omitempty"`
	Intake          *IntakeFields    `json:"intake,omitempty"`
	IntakeSubmitted bool             `json:"intakeSubmitted,omitempty"`
}
