package provider

import (
	"strings"

	"medfayda/internal/auth/models"
	id "medfayda/pkg/domain"
)

// IdentityClaims is the closed set of provider claims the system reads.
// Anything else in the ID token or userinfo response is ignored.
type IdentityClaims struct {
	Subject           string `json:"sub"`
	FaydaID           string `json:"fayda_id,omitempty"`
	NationalID        string `json:"national_id,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	PhoneNumber       string `json:"phone_number,omitempty"`
	Phone             string `json:"phone,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FirstName         string `json:"first_name,omitempty"`
	MiddleName        string `json:"middle_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	LastName          string `json:"last_name,omitempty"`
	Birthdate         string `json:"birthdate,omitempty"`
	Gender            string `json:"gender,omitempty"`
	Picture           string `json:"picture,omitempty"`
	Role              string `json:"role,omitempty"`
	FacilityID        string `json:"health_center_id,omitempty"`
	LicenseNumber     string `json:"license_number,omitempty"`
	Specialization    string `json:"specialization,omitempty"`
}

// HasProfile reports whether the claims carry enough to name the principal.
func (c *IdentityClaims) HasProfile() bool {
	return firstNonEmpty(c.GivenName, c.FirstName) != "" || firstNonEmpty(c.PhoneNumber, c.Phone) != ""
}

// Merge fills empty fields of c from other. Subject is never overwritten.
func (c *IdentityClaims) Merge(other *IdentityClaims) {
	if other == nil {
		return
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&c.FaydaID, other.FaydaID)
	fill(&c.NationalID, other.NationalID)
	fill(&c.PreferredUsername, other.PreferredUsername)
	fill(&c.Email, other.Email)
	fill(&c.PhoneNumber, other.PhoneNumber)
	fill(&c.Phone, other.Phone)
	fill(&c.GivenName, other.GivenName)
	fill(&c.FirstName, other.FirstName)
	fill(&c.MiddleName, other.MiddleName)
	fill(&c.FamilyName, other.FamilyName)
	fill(&c.LastName, other.LastName)
	fill(&c.Birthdate, other.Birthdate)
	fill(&c.Gender, other.Gender)
	fill(&c.Picture, other.Picture)
	fill(&c.Role, other.Role)
	fill(&c.FacilityID, other.FacilityID)
	fill(&c.LicenseNumber, other.LicenseNumber)
	fill(&c.Specialization, other.Specialization)
}

// MapClaims converts validated claims into a principal candidate. It has no
// side effects: IDs, timestamps and persistence belong to the caller.
//
// The role defaults to patient. A higher role is kept only when the provider
// asserts a recognized one; professional fields are dropped for other roles.
func MapClaims(c IdentityClaims) models.Principal {
	p := models.Principal{
		ExternalSubject: firstNonEmpty(c.Subject, c.FaydaID, c.NationalID, c.PreferredUsername),
		FIN:             firstNonEmpty(c.FaydaID, c.NationalID, c.Subject),
		Email:           strings.ToLower(strings.TrimSpace(c.Email)),
		GivenName:       strings.TrimSpace(firstNonEmpty(c.GivenName, c.FirstName)),
		MiddleName:      strings.TrimSpace(c.MiddleName),
		FamilyName:      strings.TrimSpace(firstNonEmpty(c.FamilyName, c.LastName)),
		BirthDate:       strings.TrimSpace(c.Birthdate),
		Gender:          mapGender(c.Gender),
		PictureURL:      c.Picture,
		Role:            id.RolePatient,
		Active:          true,
	}
	if phone := firstNonEmpty(c.PhoneNumber, c.Phone); phone != "" {
		p.Phone = models.NormalizePhone(phone)
	}
	if role, ok := id.ParseRole(c.Role); ok {
		p.Role = role
	}
	if p.Role != id.RolePatient {
		p.FacilityID = id.FacilityID(strings.TrimSpace(c.FacilityID))
	}
	if p.Role.Professional() {
		p.LicenseNumber = strings.TrimSpace(c.LicenseNumber)
		p.Specialization = strings.TrimSpace(c.Specialization)
	}
	return p
}

func mapGender(raw string) models.Gender {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "male", "m":
		return models.GenderMale
	case "female", "f":
		return models.GenderFemale
	default:
		return models.GenderUnknown
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
