package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokens_SignAndVerify(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	tok, err := tokens.Sign("user-1")
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}
	uid, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if uid != "user-1" {
		t.Errorf("Verify() = %q, want user-1", uid)
	}
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	expired, _ := NewTokens("secret", time.Nanosecond).Sign("user-1")
	time.Sleep(time.Millisecond)
	forged, _ := NewTokens("other", time.Hour).Sign("user-1")
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"}).SignedString([]byte("secret"))
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))

	tests := map[string]string{
		"expired":    expired,
		"forged":     forged,
		"malformed":  "not.a.token",
		"no expiry":  noExpiry,
		"no subject": noSubject,
	}
	for name, tok := range tests {
		if _, err := tokens.Verify(tok); err == nil {
			t.Errorf("Verify(%s) succeeded, want error", name)
		}
	}
}

func TestTokens_EmptySecret(t *testing.T) {
	tokens := NewTokens("", time.Hour)
	if _, err := tokens.Sign("user-1"); err == nil {
		t.Error("Sign() with empty secret should fail")
	}
}

func TestTokensFromEnv_TTL(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("JWT_TTL", "15m")
	if got := TokensFromEnv().ttl; got != 15*time.Minute {
		t.Errorf("ttl = %v, want 15m", got)
	}

	t.Setenv("JWT_TTL", "bogus")
	if got := TokensFromEnv().ttl; got != defaultTokenTTL {
		t.Errorf("ttl = %v, want default", got)
	}
}
