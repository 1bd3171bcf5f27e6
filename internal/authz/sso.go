package authz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDomainNotAllowed is returned when an SSO token's email domain is not
// in the allow list.
var ErrDomainNotAllowed = errors.New("email domain not allowed")

// SSOClaims are the claims carried by an SSO-issued token.
type SSOClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// SSOValidator verifies HMAC-signed SSO tokens and enforces the allowed
// email domain list. An empty domain list allows any domain.
type SSOValidator struct {
	secret         []byte
	allowedDomains []string
	leeway         time.Duration
}

// NewSSOValidator creates a validator for the shared-secret SSO scheme.
func NewSSOValidator(secret string, allowedDomains []string) *SSOValidator {
	domains := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return &SSOValidator{
		secret:         []byte(secret),
		allowedDomains: domains,
		leeway:         30 * time.Second,
	}
}

// Validate parses and verifies a token, returning its claims. The token
// must be HMAC-signed with the shared secret, unexpired, and carry an
// email whose domain is allowed.
func (v *SSOValidator) Validate(tokenString string) (*SSOClaims, error) {
	claims := &SSOClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse sso token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid sso token")
	}
	if claims.Email == "" {
		return nil, errors.New("sso token missing email claim")
	}
	if err := v.checkDomain(claims.Email); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *SSOValidator) checkDomain(email string) error {
	if len(v.allowedDomains) == 0 {
		return nil
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return fmt.Errorf("email %q: %w", email, ErrDomainNotAllowed)
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range v.allowedDomains {
		if domain == d {
			return nil
		}
	}
	return fmt.Errorf("domain %q: %w", domain, ErrDomainNotAllowed)
}
