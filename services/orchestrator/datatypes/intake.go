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
)

// ===== Case strength =====

// CaseStrength is the model's coarse read on how developed a potential
// matter is. Anything outside the known values is dropped at parse time.
type CaseStrength string

const (
	CaseNeedsMoreInfo CaseStrength = "needs_more_info"
	CaseDeveloping    CaseStrength = "developing"
	CaseStrong        CaseStrength = "strong"
)

func validCaseStrength(s CaseStrength) bool {
	switch s {
	case CaseNeedsMoreInfo, CaseDeveloping, CaseStrong:
		return true
	}
	return false
}

// ===== Intake fields =====

// IntakeFields
//
// # Description
//
//	Structured consultation-intake state. Every field is a pointer so a
//	per-turn delta distinguishes "model said nothing about this" (nil,
//	preserved on merge) from "model set it" (non-nil, overwrites). The
//	same shape serves as both the cumulative stored state and the
//	per-turn delta streamed to the client.
type IntakeFields struct {
	PracticeArea       *string      `json:"practiceArea,omitempty"`
	Description        *string      `json:"description,omitempty"`
	Urgency            *string      `json:"urgency,omitempty"`
	OpposingParty      *string      `json:"opposingParty,omitempty"`
	City               *string      `json:"city,omitempty"`
	State              *string      `json:"state,omitempty"`
	ZipCode            *string      `json:"zipCode,omitempty"`
	DesiredOutcome     *string      `json:"desiredOutcome,omitempty"`
	CourtDate          *string      `json:"courtDate,omitempty"`
	MonthlyIncome      *string      `json:"monthlyIncome,omitempty"`
	HouseholdSize      *int         `json:"householdSize,omitempty"`
	HasDocuments       *bool        `json:"hasDocuments,omitempty"`
	EligibilitySignals []string     `json:"eligibilitySignals,omitempty"`
	CaseStrength       CaseStrength `json:"caseStrength,omitempty"`
	MissingSummary     *string      `json:"missingSummary,omitempty"`
}

// MergeIntake applies a per-turn delta on top of the stored state. Keys
// present in the delta win; absent keys preserve prior values. Neither
// input is mutated.
func MergeIntake(prev, delta *IntakeFields) *IntakeFields {
	if prev == nil && delta == nil {
		return nil
	}
	out := &IntakeFields{}
	if prev != nil {
		*out = *prev
	}
	if delta == nil {
		return out
	}
	if delta.PracticeArea != nil {
		out.PracticeArea = delta.PracticeArea
	}
	if delta.Description != nil {
		out.Description = delta.Description
	}
	if delta.Urgency != nil {
		out.Urgency = delta.Urgency
	}
	if delta.OpposingParty != nil {
		out.OpposingParty = delta.OpposingParty
	}
	if delta.City != nil {
		out.City = delta.City
	}
	if delta.State != nil {
		out.State = delta.State
	}
	if delta.ZipCode != nil {
		out.ZipCode = delta.ZipCode
	}
	if delta.DesiredOutcome != nil {
		out.DesiredOutcome = delta.DesiredOutcome
	}
	if delta.CourtDate != nil {
		out.CourtDate = delta.CourtDate
	}
	if delta.MonthlyIncome != nil {
		out.MonthlyIncome = delta.MonthlyIncome
	}
	if delta.HouseholdSize != nil {
		out.HouseholdSize = delta.HouseholdSize
	}
	if delta.HasDocuments != nil {
		out.HasDocuments = delta.HasDocuments
	}
	if len(delta.EligibilitySignals) > 0 {
		out.EligibilitySignals = delta.EligibilitySignals
	}
	if delta.CaseStrength != "" {
		out.CaseStrength = delta.CaseStrength
	}
	if delta.MissingSummary != nil {
		out.MissingSummary = delta.MissingSummary
	}
	return out
}

func hasText(p *string) bool {
	return p != nil && *p != ""
}

// ReadyForSubmission reports whether the cumulative state clears the
// deterministic readiness bar: case strength at least developing plus the
// five required narrative fields. The model never decides this.
func (f *IntakeFields) ReadyForSubmission() bool {
	if f == nil {
		return false
	}
	if f.CaseStrength != CaseDeveloping && f.CaseStrength != CaseStrong {
		return false
	}
	return hasText(f.Description) &&
		hasText(f.City) &&
		hasText(f.State) &&
		hasText(f.OpposingParty) &&
		hasText(f.DesiredOutcome)
}

// ===== Tool-call payload parsing =====

// intakeToolArgs is the wire shape of a record_intake_fields tool call.
// Quick replies ride alongside the field delta and are peeled off here.
type intakeToolArgs struct {
	IntakeFields
	QuickReplies []string `json:"quickReplies,omitempty"`
}

// ParseIntakeArgs decodes reconciled tool-call arguments into a field
// delta plus quick replies. Unknown keys are ignored, an out-of-range
// caseStrength is dropped rather than failing the turn, and quick replies
// are truncated to the cap.
func ParseIntakeArgs(raw []byte) (*IntakeFields, []string, error) {
	var args intakeToolArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, nil, fmt.Errorf("malformed intake arguments: %w", err)
	}
	if args.CaseStrength != "" && !validCaseStrength(args.CaseStrength) {
		args.CaseStrength = ""
	}
	replies := args.QuickReplies
	if len(replies) > MaxQuickReplies {
		replies = replies[:MaxQuickReplies]
	}
	fields := args.IntakeFields
	return &fields, replies, nil
}
