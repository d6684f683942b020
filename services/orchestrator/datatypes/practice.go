// Casewise
// Copyright (C) 2025 Casewise (engineering@casewise.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "strings"

// PracticeDetails is the practice record as read from the store. Every
// field except ID and Slug is optional; prompt builders and the profile
// scorer check each field before use instead of trusting shape.
type PracticeDetails struct {
	ID            string   `json:"id"`
	Slug          string   `json:"slug"`
	OwnerID       string   `json:"ownerId,omitempty"`
	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Email         string   `json:"email,omitempty"`
	Website       string   `json:"website,omitempty"`
	AddressLine1  string   `json:"addressLine1,omitempty"`
	AddressLine2  string   `json:"addressLine2,omitempty"`
	AddressCity   string   `json:"addressCity,omitempty"`
	AddressState  string   `json:"addressState,omitempty"`
	AddressZip    string   `json:"addressZip,omitempty"`
	Services      []string `json:"services,omitempty"`
	IntroMessage  string   `json:"introMessage,omitempty"`
	AccentColor   string   `json:"accentColor,omitempty"`
	BusinessHours string   `json:"businessHours,omitempty"`
	IsPublic      bool     `json:"isPublic"`
}

// HasContactInfo reports whether the practice exposes any direct contact
// channel a visitor could be pointed at.
func (p *PracticeDetails) HasContactInfo() bool {
	if p == nil {
		return false
	}
	return p.Phone != "" || p.Email != "" || p.Website != ""
}

// FormattedAddress joins the populated address parts into one line.
func (p *PracticeDetails) FormattedAddress() string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, 4)
	for _, s := range []string{p.AddressLine1, p.AddressLine2, p.AddressCity, p.AddressState} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	line := strings.Join(parts, ", ")
	if p.AddressZip != "" {
		if line != "" {
			line += " " + p.AddressZip
		} else {
			line = p.AddressZip
		}
	}
	return line
}
