package authz

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func issueToken(t *testing.T, secret, email string, expires time.Time) string {
	t.Helper()
	claims := &SSOClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestSSOValidateAcceptsSignedToken(t *testing.T) {
	v := NewSSOValidator("shared-secret", []string{"example.com"})
	token := issueToken(t, "shared-secret", "dev@example.com", time.Now().Add(time.Hour))

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.Email != "dev@example.com" {
		t.Errorf("email = %q", claims.Email)
	}
}

func TestSSOValidateRejectsWrongSecret(t *testing.T) {
	v := NewSSOValidator("shared-secret", nil)
	token := issueToken(t, "other-secret", "dev@example.com", time.Now().Add(time.Hour))

	if _, err := v.Validate(token); err == nil {
		t.Error("token signed with the wrong secret accepted")
	}
}

func TestSSOValidateRejectsExpiredToken(t *testing.T) {
	v := NewSSOValidator("shared-secret", nil)
	// Past the 30s leeway.
	token := issueToken(t, "shared-secret", "dev@example.com", time.Now().Add(-time.Hour))

	if _, err := v.Validate(token); err == nil {
		t.Error("expired token accepted")
	}
}

func TestSSOValidateRequiresExpiry(t *testing.T) {
	v := NewSSOValidator("shared-secret", nil)
	claims := &SSOClaims{Email: "dev@example.com"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := v.Validate(token); err == nil {
		t.Error("token without exp accepted")
	}
}

func TestSSOValidateDomainAllowList(t *testing.T) {
	v := NewSSOValidator("shared-secret", []string{"Example.com ", "corp.example.org"})

	allowed := issueToken(t, "shared-secret", "dev@EXAMPLE.com", time.Now().Add(time.Hour))
	if _, err := v.Validate(allowed); err != nil {
		t.Errorf("allowed domain rejected: %v", err)
	}

	denied := issueToken(t, "shared-secret", "dev@evil.com", time.Now().Add(time.Hour))
	_, err := v.Validate(denied)
	if !errors.Is(err, ErrDomainNotAllowed) {
		t.Errorf("err = %v, want ErrDomainNotAllowed", err)
	}
}

func TestSSOValidateMissingEmail(t *testing.T) {
	v := NewSSOValidator("shared-secret", nil)
	claims := &SSOClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := v.Validate(token); err == nil {
		t.Error("token without email claim accepted")
	}
}
