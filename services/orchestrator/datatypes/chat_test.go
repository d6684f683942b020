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
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() *ChatRequest {
	return &ChatRequest{
		ConversationID: uuid.NewString(),
		Messages: []ChatMessage{
			{Role: "user", Content: "Can my landlord evict me without notice?"},
		},
	}
}

func TestChatRequestValidate_OK(t *testing.T) {
	require.NoError(t, validRequest().Validate())
}

func TestChatRequestValidate_RequiresConversationID(t *testing.T) {
	r := validRequest()
	r.ConversationID = ""
	assert.Error(t, r.Validate())

	r.ConversationID = "not-a-uuid"
	assert.Error(t, r.Validate())
}

func TestChatRequestValidate_RejectsUnknownRole(t *testing.T) {
	r := validRequest()
	r.Messages[0].Role = "system"
	assert.Error(t, r.Validate())
}

func TestChatRequestValidate_RejectsEmptyMessages(t *testing.T) {
	r := validRequest()
	r.Messages = nil
	assert.Error(t, r.Validate())
}

func TestChatRequestValidate_MessageCountLimit(t *testing.T) {
	r := validRequest()
	for i := 0; i < MaxMessagesPerRequest; i++ {
		r.Messages = append(r.Messages, ChatMessage{Role: "assistant", Content: "ok"})
	}
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many messages")
}

func TestChatRequestValidate_PerMessageLimit(t *testing.T) {
	r := validRequest()
	r.Messages[0].Content = strings.Repeat("a", MaxMessageContentChars+1)
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "character limit")
}

func TestChatRequestValidate_AggregateLimit(t *testing.T) {
	r := validRequest()
	r.Messages = nil
	// Seven messages just under the per-message cap blow the aggregate cap.
	for i := 0; i < 7; i++ {
		r.Messages = append(r.Messages, ChatMessage{Role: "user", Content: strings.Repeat("a", MaxMessageContentChars)})
	}
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total message content")
}

func TestLastUserMessage(t *testing.T) {
	r := validRequest()
	r.Messages = append(r.Messages,
		ChatMessage{Role: "assistant", Content: "Generally notice is required."},
		ChatMessage{Role: "user", Content: "What about in Ohio?"},
		ChatMessage{Role: "assistant", Content: "Ohio requires written notice."},
	)
	assert.Equal(t, "What about in Ohio?", r.LastUserMessage())

	r.Messages = []ChatMessage{{Role: "assistant", Content: "hi"}}
	assert.Equal(t, "", r.LastUserMessage())
}

func TestParseConversationMode(t *testing.T) {
	cases := []struct {
		in   string
		want ConversationMode
		ok   bool
	}{
		{"general_qa", ModeGeneralQA, true},
		{"REQUEST_CONSULTATION", ModeRequestConsultation, true},
		{" practice_onboarding ", ModePracticeOnboarding, true},
		{"", "", false},
		{"escalate", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseConversationMode(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
