package collab

import (
	"collabnotes/core"
	"fmt"
	"strings"
)

// TokenVerifier checks a signed credential and returns the user it was issued to.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Authenticator admits a connection once, at handshake. Expiry is not re-checked later,
// so a token that expires mid-session stays good for that session.
type Authenticator struct {
	verifier TokenVerifier
}

func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Authenticate returns the user id bound to token or an error wrapping ErrAuthentication.
func (a *Authenticator) Authenticate(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return "", fmt.Errorf("missing token: %w", core.ErrAuthentication)
	}
	userID, err := a.verifier.Verify(token)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, core.ErrAuthentication)
	}
	if userID == "" {
		return "", fmt.Errorf("token has no subject: %w", core.ErrAuthentication)
	}
	return userID, nil
}
