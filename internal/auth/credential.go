package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campuspresence/internal/models"
)

// Credential is the bearer token presented to the feed and REST endpoints.
// The agent never verifies the signature (it does not hold the server secret);
// it only extracts the claims it needs and checks expiry locally so an expired
// credential fails fast instead of producing a retry storm.
type Credential struct {
	raw       string
	SubjectID string
	Role      models.Role
	Issuer    string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// ParseCredential extracts the subject id, role, issuer and expiry claims from
// a bearer token without verifying its signature
func ParseCredential(raw string) (*Credential, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing token")
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	cred := &Credential{raw: raw}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("missing or invalid subject in token")
	}
	cred.SubjectID = sub

	if role, ok := claims["role"].(string); ok {
		cred.Role = models.Role(role)
	}
	if iss, ok := claims["iss"].(string); ok {
		cred.Issuer = iss
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		cred.ExpiresAt = exp.Time
	}

	return cred, nil
}

// Token returns the raw bearer token
func (c *Credential) Token() string {
	return c.raw
}

// BearerHeader returns the Authorization header value for this credential
func (c *Credential) BearerHeader() string {
	return "Bearer " + c.raw
}

// Expired reports whether the credential's exp claim has passed
func (c *Credential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}

// NewSignedCredential mints an HMAC-signed token carrying the claims the agent
// reads back. Used by tests and local tooling; production tokens come from the
// campus auth service.
func NewSignedCredential(secret, issuer, subjectID string, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  subjectID,
		"role": string(role),
		"iss":  issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
