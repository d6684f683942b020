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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullPractice() *PracticeDetails {
	return &PracticeDetails{
		ID:           "p1",
		Slug:         "harbor-legal",
		Name:         "Harbor Legal",
		Description:  "Tenant-side housing practice serving northeast Ohio.",
		Services:     []string{"Evictions", "Lease review"},
		Website:      "https://harbor.legal",
		Phone:        "555-0100",
		Email:        "intake@harbor.legal",
		AddressLine1: "100 Main St",
		AddressCity:  "Cleveland",
		AddressState: "OH",
		IntroMessage: "Tell us about your housing issue.",
		AccentColor:  "#1a6b54",
	}
}

func TestComputeOnboardingProfile_FullClampsTo100(t *testing.T) {
	prof := ComputeOnboardingProfile(fullPractice())
	assert.Equal(t, 100, prof.CompletionScore)
	assert.Empty(t, prof.MissingFields)
	assert.Len(t, prof.CompletedFields, len(profileWeights))
	assert.NotEmpty(t, prof.SummaryFields)
}

func TestComputeOnboardingProfile_Partial(t *testing.T) {
	p := &PracticeDetails{ID: "p1", Slug: "s", Name: "Harbor Legal", Services: []string{"Evictions"}}
	prof := ComputeOnboardingProfile(p)
	// name 10 + services 20
	assert.Equal(t, 30, prof.CompletionScore)
	assert.Contains(t, prof.CompletedFields, "name")
	assert.Contains(t, prof.CompletedFields, "services")
	assert.Contains(t, prof.MissingFields, "description")
	assert.Contains(t, prof.MissingFields, "address")
}

func TestComputeOnboardingProfile_AddressNeedsCityAndState(t *testing.T) {
	p := &PracticeDetails{AddressLine1: "100 Main St"}
	prof := ComputeOnboardingProfile(p)
	assert.Contains(t, prof.MissingFields, "address")
}

func TestComputeOnboardingProfile_Nil(t *testing.T) {
	prof := ComputeOnboardingProfile(nil)
	assert.Equal(t, 0, prof.CompletionScore)
	assert.Len(t, prof.MissingFields, len(profileWeights))
}

func TestApplyOnboarding(t *testing.T) {
	base := &PracticeDetails{ID: "p1", Name: "Old Name", Phone: "555-0100"}
	delta := &OnboardingFields{
		Name:        strp("Harbor Legal"),
		Description: strp("Housing practice."),
		Address: &OnboardingAddress{
			Line1: strp("100 Main St"),
			City:  strp("Cleveland"),
		},
	}
	out := ApplyOnboarding(base, delta)
	assert.Equal(t, "Harbor Legal", out.Name)
	assert.Equal(t, "Housing practice.", out.Description)
	assert.Equal(t, "555-0100", out.Phone)
	assert.Equal(t, "100 Main St", out.AddressLine1)
	assert.Equal(t, "Cleveland", out.AddressCity)

	// base untouched
	assert.Equal(t, "Old Name", base.Name)
}

func TestParseOnboardingArgs(t *testing.T) {
	raw := []byte(`{
		"name": "Harbor Legal",
		"services": ["Evictions", "Lease review"],
		"quickReplies": ["Add services", "Set hours"],
		"triggerEditModal": "services"
	}`)
	fields, replies, modal, err := ParseOnboardingArgs(raw)
	require.NoError(t, err)
	assert.Equal(t, "Harbor Legal", *fields.Name)
	assert.Len(t, fields.Services, 2)
	assert.Len(t, replies, 2)
	assert.Equal(t, "services", modal)
}

func TestParseOnboardingArgs_DropsUnknownModal(t *testing.T) {
	_, _, modal, err := ParseOnboardingArgs([]byte(`{"triggerEditModal": "billing"}`))
	require.NoError(t, err)
	assert.Equal(t, "", modal)
}

func TestParseOnboardingArgs_TruncatesServices(t *testing.T) {
	raw := []byte(`{"services": [` + repeatedJSONStrings(MaxOnboardingServices+5) + `]}`)
	fields, _, _, err := ParseOnboardingArgs(raw)
	require.NoError(t, err)
	assert.Len(t, fields.Services, MaxOnboardingServices)
}

func repeatedJSONStrings(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += `"svc"`
	}
	return out
}

func TestPracticeHelpers(t *testing.T) {
	p := fullPractice()
	assert.True(t, p.HasContactInfo())
	assert.Equal(t, "100 Main St, Cleveland, OH", p.FormattedAddress())

	var nilP *PracticeDetails
	assert.False(t, nilP.HasContactInfo())
	assert.Equal(t, "", nilP.FormattedAddress())

	empty := &PracticeDetails{AddressZip: "44101"}
	assert.Equal(t, "44101", empty.FormattedAddress())
}
