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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casewise/casewise/services/orchestrator/datatypes"
)

func TestContract_CleanReplyPasses(t *testing.T) {
	reply := "Generally, landlords must give written notice. Would you like to know more?"
	out, violated := EnforceResponseContract(datatypes.ModeGeneralQA, "how does eviction notice work", reply)
	assert.Equal(t, reply, out)
	assert.Empty(t, violated)
}

func TestContract_MissingDisclaimerGeneralQA(t *testing.T) {
	out, violated := EnforceResponseContract(
		datatypes.ModeGeneralQA,
		"should I sue my landlord?",
		"You should definitely sue them.",
	)
	assert.Equal(t, []string{ruleMissingDisclaimer}, violated)
	assert.Equal(t, FallbackMessage(datatypes.ModeGeneralQA), out)
}

func TestContract_MissingDisclaimerIntakeMode(t *testing.T) {
	out, violated := EnforceResponseContract(
		datatypes.ModeRequestConsultation,
		"do I have a case?",
		"Sounds like a strong case to me.",
	)
	assert.Equal(t, []string{ruleMissingDisclaimer}, violated)
	assert.Equal(t, LegalDisclaimer, out)
}

func TestContract_DisclaimerPresentPasses(t *testing.T) {
	reply := "Here is some background. " + LegalDisclaimer
	out, violated := EnforceResponseContract(datatypes.ModeGeneralQA, "should I sue?", reply)
	assert.Equal(t, reply, out)
	assert.Empty(t, violated)
}

func TestContract_DisclaimerApostropheNormalized(t *testing.T) {
	// Model emitted a typographic apostrophe in "can't".
	curly := strings.Replace(LegalDisclaimer, "can't", "can’t", 1)
	out, violated := EnforceResponseContract(datatypes.ModeGeneralQA, "should I sue?", "Background. "+curly)
	assert.Empty(t, violated)
	assert.Contains(t, out, "can’t")
}

func TestContract_TooManyQuestionsGeneralQA(t *testing.T) {
	out, violated := EnforceResponseContract(
		datatypes.ModeGeneralQA,
		"tell me about leases",
		"What city? What state? How long have you lived there?",
	)
	assert.Equal(t, []string{ruleTooManyQuestions}, violated)
	assert.Equal(t, FallbackMessage(datatypes.ModeGeneralQA), out)
}

func TestContract_TooManyQuestionsOnboarding(t *testing.T) {
	out, violated := EnforceResponseContract(
		datatypes.ModePracticeOnboarding,
		"set up my profile",
		"What's your name? What's your phone?",
	)
	assert.Equal(t, []string{ruleTooManyQuestions}, violated)
	assert.Equal(t, FallbackMessage(datatypes.ModePracticeOnboarding), out)
}

func TestContract_IntakeExemptFromQuestionRule(t *testing.T) {
	reply := "What city are you in? And who is the other party?"
	out, violated := EnforceResponseContract(datatypes.ModeRequestConsultation, "I need help", reply)
	assert.Equal(t, reply, out)
	assert.Empty(t, violated)
}
