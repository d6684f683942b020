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
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
)

// ===== Canned responses =====

// LegalDisclaimer must appear verbatim in every general-QA answer. The
// contract checker matches it with apostrophes normalized.
const LegalDisclaimer = "I can't provide legal advice, but I can share general information and help you connect with an attorney."

// Fallback messages streamed as a single token when the model yields no
// usable text or violates the response contract.
const (
	fallbackGeneralQA = "I can't provide legal advice, but I can share general information and help you connect with an attorney. Could you tell me a bit more about your situation?"

	fallbackConsultation = "Thanks for sharing that. Could you tell me a little more about what happened so I can help prepare your consultation request?"

	fallbackOnboarding = "Let's keep building your practice profile. What would you like to add next?"
)

// FallbackMessage returns the canned reply for mode.
func FallbackMessage(mode datatypes.ConversationMode) string {
	switch mode {
	case datatypes.ModeRequestConsultation:
		return fallbackConsultation
	case datatypes.ModePracticeOnboarding:
		return fallbackOnboarding
	default:
		return fallbackGeneralQA
	}
}

// ===== Tool definitions =====

// intakeToolName and onboardingToolName are the function names the model
// calls to report structured state. The decoder ignores any other name.
const (
	intakeToolName     = "record_intake_fields"
	onboardingToolName = "record_onboarding_fields"
)

var intakeTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        intakeToolName,
		Description: "Record consultation intake fields learned this turn. Only include fields the user actually provided or updated.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"practiceArea":   {Type: jsonschema.String, Description: "Area of law, e.g. housing, family, employment"},
				"description":    {Type: jsonschema.String, Description: "Plain-language summary of the legal issue"},
				"urgency":        {Type: jsonschema.String, Description: "How time-sensitive the matter is"},
				"opposingParty":  {Type: jsonschema.String, Description: "Person or organization on the other side"},
				"city":           {Type: jsonschema.String},
				"state":          {Type: jsonschema.String, Description: "Two-letter state code"},
				"zipCode":        {Type: jsonschema.String},
				"desiredOutcome": {Type: jsonschema.String, Description: "What the user hopes to achieve"},
				"courtDate":      {Type: jsonschema.String, Description: "Upcoming court date if any, ISO 8601"},
				"monthlyIncome":  {Type: jsonschema.String},
				"householdSize":  {Type: jsonschema.Integer},
				"hasDocuments":   {Type: jsonschema.Boolean},
				"eligibilitySignals": {
					Type:  jsonschema.Array,
					Items: &jsonschema.Definition{Type: jsonschema.String},
				},
				"caseStrength": {
					Type: jsonschema.String,
					Enum: []string{"needs_more_info", "developing", "strong"},
				},
				"missingSummary": {Type: jsonschema.String, Description: "One sentence on what is still needed"},
				"quickReplies": {
					Type:        jsonschema.Array,
					Items:       &jsonschema.Definition{Type: jsonschema.String},
					Description: "Up to three short suggested replies",
				},
			},
			Required: []string{"caseStrength"},
		},
	},
}

var onboardingTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        onboardingToolName,
		Description: "Record practice profile fields the owner provided this turn. Only include fields actually provided or updated.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"name":        {Type: jsonschema.String, Description: "Public practice name"},
				"description": {Type: jsonschema.String, Description: "Short public description of the practice"},
				"services": {
					Type:  jsonschema.Array,
					Items: &jsonschema.Definition{Type: jsonschema.String},
				},
				"website":       {Type: jsonschema.String},
				"contactPhone":  {Type: jsonschema.String},
				"businessEmail": {Type: jsonschema.String},
				"address": {
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"line1": {Type: jsonschema.String},
						"line2": {Type: jsonschema.String},
						"city":  {Type: jsonschema.String},
						"state": {Type: jsonschema.String},
						"zip":   {Type: jsonschema.String},
					},
				},
				"introMessage": {Type: jsonschema.String, Description: "Greeting shown to visitors opening a chat"},
				"accentColor":  {Type: jsonschema.String, Description: "Hex color for the public page"},
				"completionScore": {
					Type:        jsonschema.Integer,
					Description: "Your estimate of profile completion, 0-100. Recomputed server-side.",
				},
				"missingFields": {
					Type:  jsonschema.Array,
					Items: &jsonschema.Definition{Type: jsonschema.String},
				},
				"quickReplies": {
					Type:        jsonschema.Array,
					Items:       &jsonschema.Definition{Type: jsonschema.String},
					Description: "Up to three short suggested replies",
				},
				"triggerEditModal": {
					Type: jsonschema.String,
					Enum: []string{"profile", "services", "contact", "branding"},
				},
			},
		},
	},
}

// ===== System prompts =====

const generalQAPrompt = `You are a legal information assistant on a legal services platform. You help people understand their legal situation in plain language.

Rules you must follow on every reply:
- Never give legal advice or predict case outcomes. Share general legal information only.
- Include this exact sentence somewhere in your reply: "` + LegalDisclaimer + `"
- Ask at most one question per reply.
- Keep replies short and conversational. No markdown headings.
- If the user describes a concrete legal problem, gently suggest requesting a consultation with the practice.`

const consultationPrompt = `You are an intake assistant gathering details for a legal consultation request. Your job is to understand the person's situation well enough for an attorney to evaluate it.

Rules you must follow on every reply:
- Be warm and plain-spoken. Ask about one thing at a time.
- After every turn, call the ` + intakeToolName + ` function with any fields you learned or updated, your current caseStrength assessment, and up to three quickReplies.
- Never promise outcomes or give legal advice.
- Do not tell the user whether their intake is "ready"; the platform decides that.`

const onboardingPrompt = `You are helping an attorney set up their public practice profile. Walk them through filling in the profile one piece at a time.

Rules you must follow on every turn:
- After every turn, call the ` + onboardingToolName + ` function with any profile fields the owner provided, up to three quickReplies, and triggerEditModal when they ask to edit a section directly.
- Suggest the most valuable missing field next, but follow wherever the owner wants to go.
- Keep replies to a few sentences.`

// promptContext carries everything the prompt builder may reference.
type promptContext struct {
	Mode              datatypes.ConversationMode
	Practice          *datatypes.PracticeDetails
	Intake            *datatypes.IntakeFields
	Profile           *datatypes.OnboardingProfile
	AdditionalContext string
}

// BuildSystemPrompt assembles the mode prompt plus whatever stored
// context applies. Every practice field is checked before use; a sparse
// record just means a shorter prompt.
func BuildSystemPrompt(pc promptContext) string {
	var b strings.Builder

	switch pc.Mode {
	case datatypes.ModeRequestConsultation:
		b.WriteString(consultationPrompt)
	case datatypes.ModePracticeOnboarding:
		b.WriteString(onboardingPrompt)
	default:
		b.WriteString(generalQAPrompt)
	}

	if p := pc.Practice; p != nil && pc.Mode != datatypes.ModePracticeOnboarding {
		b.WriteString("\n\nPractice context:")
		if p.Name != "" {
			fmt.Fprintf(&b, "\n- Name: %s", p.Name)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, "\n- About: %s", p.Description)
		}
		if len(p.Services) > 0 {
			fmt.Fprintf(&b, "\n- Services: %s", strings.Join(p.Services, ", "))
		}
		if p.Phone != "" {
			fmt.Fprintf(&b, "\n- Phone: %s", p.Phone)
		}
		if p.Email != "" {
			fmt.Fprintf(&b, "\n- Email: %s", p.Email)
		}
		if p.Website != "" {
			fmt.Fprintf(&b, "\n- Website: %s", p.Website)
		}
		if addr := p.FormattedAddress(); addr != "" {
			fmt.Fprintf(&b, "\n- Address: %s", addr)
		}
		if p.BusinessHours != "" {
			fmt.Fprintf(&b, "\n- Hours: %s", p.BusinessHours)
		}
	}

	if pc.Mode == datatypes.ModeRequestConsultation && pc.Intake != nil {
		b.WriteString("\n\nIntake gathered so far (do not re-ask for these):")
		writeIntakeSummary(&b, pc.Intake)
	}

	if pc.Mode == datatypes.ModePracticeOnboarding && pc.Profile != nil {
		fmt.Fprintf(&b, "\n\nProfile completion: %d%%.", pc.Profile.CompletionScore)
		if len(pc.Profile.MissingFields) > 0 {
			fmt.Fprintf(&b, " Still missing: %s.", strings.Join(pc.Profile.MissingFields, ", "))
		}
	}

	if pc.AdditionalContext != "" {
		fmt.Fprintf(&b, "\n\nAdditional context from the page the user is on:\n%s", pc.AdditionalContext)
	}

	return b.String()
}

func writeIntakeSummary(b *strings.Builder, f *datatypes.IntakeFields) {
	write := func(label string, p *string) {
		if p != nil && *p != "" {
			fmt.Fprintf(b, "\n- %s: %s", label, *p)
		}
	}
	write("Practice area", f.PracticeArea)
	write("Description", f.Description)
	write("Urgency", f.Urgency)
	write("Opposing party", f.OpposingParty)
	write("City", f.City)
	write("State", f.State)
	write("Desired outcome", f.DesiredOutcome)
	write("Court date", f.CourtDate)
	if f.CaseStrength != "" {
		fmt.Fprintf(b, "\n- Case strength: %s", f.CaseStrength)
	}
}

// BuildCompletionRequest assembles the upstream request for one turn:
// system prompt, replayed transcript, and the structured-extraction tool
// for the active mode (general QA carries no tools).
func BuildCompletionRequest(model string, pc promptContext, messages []datatypes.ChatMessage) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: BuildSystemPrompt(pc),
	})
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		Stream:   true,
	}
	switch pc.Mode {
	case datatypes.ModeRequestConsultation:
		req.Tools = []openai.Tool{intakeTool}
	case datatypes.ModePracticeOnboarding:
		req.Tools = []openai.Tool{onboardingTool}
	}
	return req
}
