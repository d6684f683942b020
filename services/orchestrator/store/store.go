// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store defines the persistence contract the chat orchestrator
// depends on, plus the embedded BadgerDB implementation used for local
// deployments and tests. The orchestrator only ever talks to the
// interfaces here; swapping in a hosted database is a wiring change.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
)

// ErrNotFound is returned when a conversation, message, or practice does
// not exist. Handlers map it to a 404.
var ErrNotFound = errors.New("store: not found")

// Conversation is the durable record a chat turn operates against.
type Conversation struct {
	ID             string                         `json:"id"`
	ParticipantIDs []string                       `json:"participantIds"`
	Metadata       datatypes.ConversationMetadata `json:"metadata"`
	CreatedAt      time.Time                      `json:"createdAt"`
	UpdatedAt      time.Time                      `json:"updatedAt"`
}

// HasParticipant reports whether userID may read and write this
// conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is a persisted conversation message. Assistant output is stored
// as a system-sender message addressed to the human participant.
type Message struct {
	ID             string                    `json:"id"`
	ConversationID string                    `json:"conversationId"`
	SenderID       string                    `json:"senderId"`
	RecipientID    string                    `json:"recipientId"`
	Role           string                    `json:"role"`
	Content        string                    `json:"content"`
	Metadata       datatypes.MessageMetadata `json:"metadata"`
	CreatedAt      time.Time                 `json:"createdAt"`
}

// SystemSenderID is the synthetic sender recorded on assistant messages.
const SystemSenderID = "system"

// ConversationStore is everything a chat turn needs from conversation
// persistence.
type ConversationStore interface {
	// GetConversation loads the record or ErrNotFound.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// CreateConversation inserts a new record. Used by intake kickoff and
	// tests; the orchestrator itself never creates conversations.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// UpdateConversationMetadata replaces the metadata bag wholesale.
	UpdateConversationMetadata(ctx context.Context, id string, md datatypes.ConversationMetadata) error

	// SendSystemMessage persists one assistant message addressed to
	// recipientID and returns its generated id.
	SendSystemMessage(ctx context.Context, conversationID, recipientID, content string, md datatypes.MessageMetadata) (string, error)

	// ListMessages returns the conversation's messages oldest-first.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// PracticeStore serves practice records by slug or id.
type PracticeStore interface {
	GetPracticeBySlug(ctx context.Context, slug string) (*datatypes.PracticeDetails, error)
	GetPracticeByID(ctx context.Context, id string) (*datatypes.PracticeDetails, error)

	// UpsertPractice writes the record, indexing it by both id and slug.
	UpsertPractice(ctx context.Context, p *datatypes.PracticeDetails) error
}

// Store is the combined contract the orchestrator is wired with.
type Store interface {
	ConversationStore
	PracticeStore
}
