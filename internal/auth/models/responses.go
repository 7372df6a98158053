package models

import (
	"time"
)

// InitiateResult is returned when a federated login starts.
type InitiateResult struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}

// LoginResult is returned by every successful login path.
type LoginResult struct {
	SessionToken string           `json:"sessionToken"`
	TokenType    string           `json:"tokenType"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	Principal    PrincipalSummary `json:"principal"`
	Created      bool             `json:"created"`
}

// SendCodeResult identifies the SMS verification session.
type SendCodeResult struct {
	VerificationSessionID string    `json:"verificationSessionId"`
	ExpiresAt             time.Time `json:"expiresAt"`
}

// PrincipalSummary is the JSON view of a principal.
type PrincipalSummary struct {
	ID             string     `json:"id"`
	FIN            string     `json:"fin,omitempty"`
	Name           string     `json:"name,omitempty"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Role           string     `json:"role"`
	FacilityID     string     `json:"facilityId,omitempty"`
	Specialization string     `json:"specialization,omitempty"`
	Active         bool       `json:"active"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
}

// Summarize converts a principal into its JSON view.
func Summarize(p *Principal) PrincipalSummary {
	return PrincipalSummary{
		ID:             p.ID.String(),
		FIN:            p.FIN,
		Name:           p.FullName(),
		Email:          p.Email,
		Phone:          p.Phone,
		Role:           p.Role.String(),
		FacilityID:     p.FacilityID.String(),
		Specialization: p.Specialization,
		Active:         p.Active,
		LastLoginAt:    p.LastLoginAt,
	}
}

// LogoutResult tells the client where to end the provider session, if anywhere.
type LogoutResult struct {
	EndSessionURL string `json:"endSessionUrl,omitempty"`
}
