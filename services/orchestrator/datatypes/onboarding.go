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
	"encoding/json"
	"fmt"
	"strings"
)

// MaxOnboardingServices caps the practice-services list extracted in one
// onboarding turn.
const MaxOnboardingServices = 20

// ===== Onboarding fields =====

// OnboardingAddress is the nested address object an onboarding turn may
// set. All parts optional; Line1 alone is enough to count the address as
// started, the profile scorer decides completeness.
type OnboardingAddress struct {
	Line1 *string `json:"line1,omitempty"`
	Line2 *string `json:"line2,omitempty"`
	City  *string `json:"city,omitempty"`
	State *string `json:"state,omitempty"`
	Zip   *string `json:"zip,omitempty"`
}

// OnboardingFields is the per-turn delta extracted while a practice owner
// sets up their public profile. Pointer fields follow the same
// present-wins merge contract as intake.
type OnboardingFields struct {
	Name          *string            `json:"name,omitempty"`
	Description   *string            `json:"description,omitempty"`
	Services      []string           `json:"services,omitempty"`
	Website       *string            `json:"website,omitempty"`
	ContactPhone  *string            `json:"contactPhone,omitempty"`
	BusinessEmail *string            `json:"businessEmail,omitempty"`
	Address       *OnboardingAddress `json:"address,omitempty"`
	IntroMessage  *string            `json:"introMessage,omitempty"`
	AccentColor   *string            `json:"accentColor,omitempty"`
}

// triggerEditModal values the client understands. Anything else is
// dropped at parse time.
var knownEditModals = map[string]bool{
	"profile":  true,
	"services": true,
	"contact":  true,
	"branding": true,
}

type onboardingToolArgs struct {
	OnboardingFields
	QuickReplies     []string `json:"quickReplies,omitempty"`
	TriggerEditModal string   `json:"triggerEditModal,omitempty"`
}

// ParseOnboardingArgs decodes reconciled record_onboarding_fields
// arguments into a field delta plus the UI directives that ride with it.
func ParseOnboardingArgs(raw []byte) (*OnboardingFields, []string, string, error) {
	var args onboardingToolArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, nil, "", fmt.Errorf("malformed onboarding arguments: %w", err)
	}
	if len(args.Services) > MaxOnboardingServices {
		args.Services = args.Services[:MaxOnboardingServices]
	}
	replies := args.QuickReplies
	if len(replies) > MaxQuickReplies {
		replies = replies[:MaxQuickReplies]
	}
	modal := args.TriggerEditModal
	if modal != "" && !knownEditModals[modal] {
		modal = ""
	}
	fields := args.OnboardingFields
	return &fields, replies, modal, nil
}

// ===== Profile scoring =====

// FieldSummary is one labeled value surfaced in the onboarding progress
// card.
type FieldSummary struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// OnboardingProfile is the recomputed completeness snapshot streamed with
// every onboarding done-event.
type OnboardingProfile struct {
	CompletionScore int            `json:"completionScore"`
	CompletedFields []string       `json:"completedFields"`
	MissingFields   []string       `json:"missingFields"`
	SummaryFields   []FieldSummary `json:"summaryFields"`
}

// profileWeights is the fixed checklist driving the completion score.
// The raw weights overshoot 100 on purpose: a fully filled profile clamps
// to 100 while partial profiles still get granular credit.
var profileWeights = []struct {
	field  string
	weight int
}{
	{"name", 10},
	{"description", 15},
	{"services", 20},
	{"website", 5},
	{"contactPhone", 10},
	{"businessEmail", 10},
	{"address", 15},
	{"introMessage", 15},
	{"accentColor", 10},
}

// ComputeOnboardingProfile scores the practice record as stored after this
// turn's merge. Pure function of the record: the model's opinion of
// progress never enters the score.
func ComputeOnboardingProfile(p *PracticeDetails) OnboardingProfile {
	prof := OnboardingProfile{
		CompletedFields: []string{},
		MissingFields:   []string{},
		SummaryFields:   []FieldSummary{},
	}
	if p == nil {
		for _, w := range profileWeights {
			prof.MissingFields = append(prof.MissingFields, w.field)
		}
		return prof
	}
	filled := map[string]bool{
		"name":          p.Name != "",
		"description":   p.Description != "",
		"services":      len(p.Services) > 0,
		"website":       p.Website != "",
		"contactPhone":  p.Phone != "",
		"businessEmail": p.Email != "",
		"address":       p.AddressLine1 != "" && p.AddressCity != "" && p.AddressState != "",
		"introMessage":  p.IntroMessage != "",
		"accentColor":   p.AccentColor != "",
	}
	score := 0
	for _, w := range profileWeights {
		if filled[w.field] {
			score += w.weight
			prof.CompletedFields = append(prof.CompletedFields, w.field)
		} else {
			prof.MissingFields = append(prof.MissingFields, w.field)
		}
	}
	if score > 100 {
		score = 100
	}
	prof.CompletionScore = score

	if p.Name != "" {
		prof.SummaryFields = append(prof.SummaryFields, FieldSummary{Label: "Name", Value: p.Name})
	}
	if p.Description != "" {
		prof.SummaryFields = append(prof.SummaryFields, FieldSummary{Label: "About", Value: truncateSummary(p.Description)})
	}
	if len(p.Services) > 0 {
		prof.SummaryFields = append(prof.SummaryFields, FieldSummary{Label: "Services", Value: strings.Join(p.Services, ", ")})
	}
	if p.Phone != "" {
		prof.SummaryFields = append(prof.SummaryFields, FieldSummary{Label: "Phone", Value: p.Phone})
	}
	if p.Email != "" {
		prof.SummaryFields = append(prof.SummaryFields, FieldSummary{Label: "Email", Value: p.Email})
	}
	if p.Website != "" {
		prof.SummaryFields = append(prof.SummaryFields, FieldSummary{Label: "Website", Value: p.Website})
	}
	return prof
}

func truncateSummary(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

// ApplyOnboarding writes a field delta onto the practice record, returning
// a copy. Present keys win, including nested address parts individually.
func ApplyOnboarding(p *PracticeDetails, delta *OnboardingFields) *PracticeDetails {
	out := &PracticeDetails{}
	if p != nil {
		*out = *p
	}
	if delta == nil {
		return out
	}
	if delta.Name != nil {
		out.Name = *delta.Name
	}
	if delta.Description != nil {
		out.Description = *delta.Description
	}
	if len(delta.Services) > 0 {
		out.Services = delta.Services
	}
	if delta.Website != nil {
		out.Website = *delta.Website
	}
	if delta.ContactPhone != nil {
		out.Phone = *delta.ContactPhone
	}
	if delta.BusinessEmail != nil {
		out.Email = *delta.BusinessEmail
	}
	if delta.Address != nil {
		if delta.Address.Line1 != nil {
			out.AddressLine1 = *delta.Address.Line1
		}
		if delta.Address.Line2 != nil {
			out.AddressLine2 = *delta.Address.Line2
		}
		if delta.Address.City != nil {
			out.AddressCity = *delta.Address.City
		}
		if delta.Address.State != nil {
			out.AddressState = *delta.Address.State
		}
		if delta.Address.Zip != nil {
			out.AddressZip = *delta.Address.Zip
		}
	}
	if delta.IntroMessage != nil {
		out.IntroMessage = *delta.IntroMessage
	}
	if delta.AccentColor != nil {
		out.AccentColor = *delta.AccentColor
	}
	return out
}
