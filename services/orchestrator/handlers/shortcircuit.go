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
	"regexp"
	"strings"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
)

// ===== Intent patterns =====

var (
	affirmationPattern = regexp.MustCompile(`^(yes|yeah|yep|ok|okay|sure|go ahead|sounds good|let'?s do it)[.!]*$`)

	hoursPattern = regexp.MustCompile(`(?i)\b(hours|availability|available|when are you open|open today|open now)\b`)

	legalIntentPattern = regexp.MustCompile(`(?i)\b(legal advice|should i sue|can i sue|do i have a case|will i win|is (it|that) legal|should i plead|represent me|what are my rights)\b`)

	servicesPattern = regexp.MustCompile(`(?i)\b(services|practice areas?|what do you (do|handle)|do you (handle|take|do|help with)|can you help (me )?with)\b`)

	// submit-style call to action markers from a prior assistant turn,
	// checked before the ready-affirmation rule fires.
	submitCtaPattern = regexp.MustCompile(`(?i)\b(submit|ready to send|send your (request|consultation))\b`)
)

// ===== Rule engine =====

// ShortCircuitResult is a deterministic reply produced without a model
// call.
type ShortCircuitResult struct {
	// Rule names the matched rule for logs and metrics.
	Rule string

	// Reply is the literal assistant text.
	Reply string
}

// shortCircuitInput is everything the rule list may consult.
type shortCircuitInput struct {
	// UserMessage is the latest user turn, already trimmed.
	UserMessage string

	// PrevAssistant is the most recent assistant turn in the replayed
	// transcript, "" when none.
	PrevAssistant string

	// PracticeRequested is true when the request named a practice slug.
	PracticeRequested bool

	// Practice is the resolved record, nil when lookup failed.
	Practice *datatypes.PracticeDetails

	// Intake is the stored cumulative intake state.
	Intake *datatypes.IntakeFields

	IsIntakeMode     bool
	IsOnboardingMode bool
	IsGeneralQA      bool
}

// Canned replies. Literal strings so tests can assert exact content.
const (
	noAccessReply = "I don't have access to this practice's details right now. You can request a consultation and someone from the practice will follow up with you directly."

	readyAffirmationReply = "Great — you can submit your consultation request now, or we can keep going and build a stronger brief first. Which would you like?"

	contactFallbackReply = "I don't have contact details for this practice on file. The best next step is to request a consultation and someone will get back to you."
)

// EvaluateShortCircuit runs the ordered rule list against the latest user
// turn. First match wins; no match means the turn goes to the model.
//
// # Description
//
// The rules, in order:
//  1. Practice details missing or private outside onboarding.
//  2. Stored intake already clears the deterministic readiness bar, the
//     user affirmed, and the prior assistant turn showed a submit CTA.
//  3. Hours/availability question, answered from stored contact fields.
//  4. General QA only: legal-advice intent answered with the disclaimer.
//  5. General QA only: service-area question answered from the service
//     list.
func EvaluateShortCircuit(in shortCircuitInput) (*ShortCircuitResult, bool) {
	msg := strings.ToLower(strings.TrimSpace(in.UserMessage))

	// Rule 1: requested practice is unusable.
	if in.PracticeRequested {
		if in.Practice == nil || (!in.Practice.IsPublic && !in.IsOnboardingMode) {
			return &ShortCircuitResult{Rule: "practice_no_access", Reply: noAccessReply}, true
		}
	}

	// Rule 2: intake ready and user affirmed a prior submit prompt.
	if in.IsIntakeMode &&
		in.Intake.ReadyForSubmission() &&
		affirmationPattern.MatchString(msg) &&
		submitCtaPattern.MatchString(in.PrevAssistant) {
		return &ShortCircuitResult{
			Rule:  "intake_ready_affirmation",
			Reply: readyAffirmationReply,
		}, true
	}

	// Rule 3: hours/availability question.
	if hoursPattern.MatchString(msg) {
		return &ShortCircuitResult{
			Rule:  "hours_contact",
			Reply: contactReply(in.Practice),
		}, true
	}

	// Rule 4: legal-advice intent (general QA only).
	if in.IsGeneralQA && legalIntentPattern.MatchString(msg) {
		return &ShortCircuitResult{Rule: "legal_advice_intent", Reply: LegalDisclaimer}, true
	}

	// Rule 5: service-area question (general QA only).
	if in.IsGeneralQA && in.Practice != nil && len(in.Practice.Services) > 0 && servicesPattern.MatchString(msg) {
		return &ShortCircuitResult{
			Rule:  "service_match",
			Reply: servicesReply(in.Practice.Services, msg),
		}, true
	}

	return nil, false
}

// contactReply assembles an hours/contact answer from whatever fields
// the practice record carries.
func contactReply(p *datatypes.PracticeDetails) string {
	if p == nil || (!p.HasContactInfo() && p.BusinessHours == "") {
		return contactFallbackReply
	}
	var parts []string
	if p.BusinessHours != "" {
		parts = append(parts, fmt.Sprintf("Our hours are %s.", p.BusinessHours))
	}
	if p.Phone != "" {
		parts = append(parts, fmt.Sprintf("You can reach us by phone at %s.", p.Phone))
	}
	if p.Email != "" {
		parts = append(parts, fmt.Sprintf("You can email us at %s.", p.Email))
	}
	if p.Website != "" {
		parts = append(parts, fmt.Sprintf("More details are on our website: %s.", p.Website))
	}
	return strings.Join(parts, " ")
}

// servicesReply names the matched service, or lists the first three plus
// a remainder count when nothing in the message matches.
func servicesReply(services []string, msg string) string {
	for _, svc := range services {
		if svc != "" && strings.Contains(msg, strings.ToLower(svc)) {
			return fmt.Sprintf("Yes — %s is one of the areas this practice handles. Would you like to request a consultation?", svc)
		}
	}
	shown := services
	if len(shown) > 3 {
		rest := len(services) - 3
		return fmt.Sprintf("This practice handles %s, and %d more areas. Is one of those close to what you need?",
			strings.Join(shown[:3], ", "), rest)
	}
	return fmt.Sprintf("This practice handles %s. Is one of those close to what you need?", strings.Join(shown, ", "))
}
