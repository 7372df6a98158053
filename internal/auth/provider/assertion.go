package provider

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	assertionLifetime   = 5 * time.Minute
)

// assertionSigner produces private_key_jwt client assertions for the token endpoint.
type assertionSigner struct {
	key      any
	keyID    string
	method   jwt.SigningMethod
	clientID string
	audience string
}

// newAssertionSigner parses a base64 encoded private JWK.
func newAssertionSigner(encodedJWK, clientID, tokenURL string) (*assertionSigner, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedJWK)
	if err != nil {
		return nil, fmt.Errorf("decode client assertion key: %w", err)
	}
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("parse client assertion key: %w", err)
	}
	if jwk.IsPublic() {
		return nil, errors.New("client assertion key must be a private key")
	}
	method := jwt.GetSigningMethod(jwk.Algorithm)
	if method == nil {
		method = jwt.SigningMethodRS256
	}
	return &assertionSigner{
		key:      jwk.Key,
		keyID:    jwk.KeyID,
		method:   method,
		clientID: clientID,
		audience: tokenURL,
	}, nil
}

func (s *assertionSigner) options(now time.Time) ([]oauth2.AuthCodeOption, error) {
	token := jwt.NewWithClaims(s.method, jwt.RegisteredClaims{
		Issuer:    s.clientID,
		Subject:   s.clientID,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		ID:        uuid.NewString(),
	})
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}
	signed, err := token.SignedString(s.key)
	if err != nil {
		return nil, err
	}
	return []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("client_assertion_type", clientAssertionType),
		oauth2.SetAuthURLParam("client_assertion", signed),
	}, nil
}
