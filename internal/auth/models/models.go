package models

import (
	"time"

	id "medfayda/pkg/domain"
)

// Gender is the closed set accepted from identity claims.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = ""
)

// LoginMethod names the path that authenticated a principal.
type LoginMethod string

const (
	LoginMethodFederated LoginMethod = "fayda"
	LoginMethodSMS       LoginMethod = "sms"
)

// SMSSubjectPrefix namespaces external subjects created by the local fallback
// so they never collide with provider subjects.
const SMSSubjectPrefix = "sms:"

// Principal is an authenticated identity known to the system.
// Principals are never hard-deleted; Deactivate clears Active instead.
type Principal struct {
	ID              id.PrincipalID
	ExternalSubject string // provider "sub", or SMSSubjectPrefix+phone
	FIN             string // national identification number
	Phone           string
	Email           string
	GivenName       string
	MiddleName      string
	FamilyName      string
	BirthDate       string // ISO 8601 date as asserted by the provider
	Gender          Gender
	PictureURL      string
	Role            id.Role
	FacilityID      id.FacilityID
	LicenseNumber   string
	Specialization  string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastLoginAt     *time.Time
}

// FullName joins the non-empty name parts.
func (p *Principal) FullName() string {
	name := ""
	for _, part := range []string{p.GivenName, p.MiddleName, p.FamilyName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}

// Deactivate marks the principal inactive. Inactive principals cannot log in.
func (p *Principal) Deactivate(now time.Time) {
	p.Active = false
	p.UpdatedAt = now
}

// RecordLogin stamps a successful login.
func (p *Principal) RecordLogin(now time.Time) {
	p.LastLoginAt = &now
	p.UpdatedAt = now
}
