package usertoken

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}

func signToken(t *testing.T, secret, subject, role, issuer, audience string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Second)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyExtractsSubjectAndRole(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "test-secret", Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	signed := signToken(t, "test-secret", "user-a", RoleAdmin, "issuer-a", "aud-a", time.Minute)
	claims, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-a" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyDefaultsRoleToUser(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "test-secret", Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	signed := signToken(t, "test-secret", "user-a", "", "issuer-a", "aud-a", time.Minute)
	claims, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Role != RoleUser {
		t.Fatalf("role = %q, want %q", claims.Role, RoleUser)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v, err := NewVerifier(Config{Secret: "test-secret", Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	tests := map[string]string{
		"wrong secret":   signToken(t, "other-secret", "user-a", "", "issuer-a", "aud-a", time.Minute),
		"wrong issuer":   signToken(t, "test-secret", "user-a", "", "issuer-b", "aud-a", time.Minute),
		"wrong audience": signToken(t, "test-secret", "user-a", "", "issuer-a", "aud-b", time.Minute),
		"expired":        signToken(t, "test-secret", "user-a", "", "issuer-a", "aud-a", -time.Hour),
		"empty subject":  signToken(t, "test-secret", "", "", "issuer-a", "aud-a", time.Minute),
		"garbage":        "not-a-token",
	}
	for name, token := range tests {
		if _, err := v.Verify(token); err == nil {
			t.Errorf("%s: expected verification to fail", name)
		}
	}
}
