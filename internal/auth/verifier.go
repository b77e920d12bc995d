package auth

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

// Identity is the verified Google account behind an ID token.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
	Domain  string
}

// TokenVerifier checks an identity-provider token.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

// ValidateFunc matches idtoken.Validate.
type ValidateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier validates Google ID tokens issued for ClientID and admits
// only accounts of AllowedDomain (any domain when empty).
type GoogleVerifier struct {
	ClientID      string
	AllowedDomain string
	validate      ValidateFunc
}

// NewGoogleVerifier creates a verifier backed by idtoken.Validate.
func NewGoogleVerifier(clientID, allowedDomain string) *GoogleVerifier {
	return &GoogleVerifier{ClientID: clientID, AllowedDomain: allowedDomain, validate: idtoken.Validate}
}

// Verify validates rawToken and checks the account's domain.
func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrInvalidToken
	}
	p, err := v.validate(ctx, rawToken, v.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := &Identity{
		Subject: p.Subject,
		Email:   claim(p.Claims, "email"),
		Name:    claim(p.Claims, "name"),
		Picture: claim(p.Claims, "picture"),
		Domain:  claim(p.Claims, "hd"),
	}
	if id.Email == "" {
		return nil, fmt.Errorf("%w: no email claim", ErrInvalidToken)
	}
	if verified, ok := p.Claims["email_verified"].(bool); ok && !verified {
		return nil, fmt.Errorf("%w: email not verified", ErrInvalidToken)
	}
	if id.Domain == "" {
		id.Domain = EmailDomain(id.Email)
	}
	if id.Name == "" {
		id.Name = id.Email
	}
	if err := CheckDomain(id.Email, v.AllowedDomain); err != nil {
		return nil, err
	}
	return id, nil
}

// EmailDomain returns the lower-case part after the last @.
func EmailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}

// CheckDomain returns ErrDomainNotAllowed unless email belongs to allowed.
// An empty allowed domain admits every address.
func CheckDomain(email, allowed string) error {
	if allowed == "" {
		return nil
	}
	if EmailDomain(email) != strings.ToLower(strings.TrimPrefix(allowed, "@")) {
		return ErrDomainNotAllowed
	}
	return nil
}

func claim(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}
