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
	"strings"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
)

// Contract rule names, surfaced in logs when a substitution fires.
const (
	ruleMissingDisclaimer = "missing_disclaimer"
	ruleTooManyQuestions  = "too_many_questions"
)

// normalizeApostrophes folds typographic apostrophes to ASCII so the
// disclaimer check is insensitive to which variant the model emitted.
func normalizeApostrophes(s string) string {
	return strings.NewReplacer("‘", "'", "’", "'").Replace(s)
}

// containsDisclaimer reports whether reply carries the legal disclaimer
// sentence, apostrophe-normalized and case-insensitive.
func containsDisclaimer(reply string) bool {
	return strings.Contains(
		strings.ToLower(normalizeApostrophes(reply)),
		strings.ToLower(normalizeApostrophes(LegalDisclaimer)),
	)
}

// EnforceResponseContract applies the post-stream reply rules and returns
// the final text plus the names of any violated rules.
//
// # Description
//
// Two independently substitutable rules:
//   - When the last user turn matched a legal-intent pattern, the reply
//     must contain the exact disclaimer sentence. On violation the reply
//     becomes the disclaimer in intake mode, or the mode fallback
//     elsewhere.
//   - In general QA and onboarding, a reply with more than one question
//     mark becomes the mode fallback. Intake is exempt since multi-part
//     clarification is expected there.
//
// The substitution always wins over the model's original text.
func EnforceResponseContract(mode datatypes.ConversationMode, lastUserMessage, reply string) (string, []string) {
	var violated []string

	if legalIntentPattern.MatchString(lastUserMessage) && !containsDisclaimer(reply) {
		violated = append(violated, ruleMissingDisclaimer)
		if mode == datatypes.ModeRequestConsultation {
			reply = LegalDisclaimer
		} else {
			reply = FallbackMessage(mode)
		}
	}

	if mode != datatypes.ModeRequestConsultation && strings.Count(reply, "?") > 1 {
		violated = append(violated, ruleTooManyQuestions)
		reply = FallbackMessage(mode)
	}

	return reply, violated
}
