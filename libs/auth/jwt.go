// Package auth issues and verifies the HS256 access tokens shared by the
// appointment API and the realtime relay.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Roles carried in the token. Owners act for a business, customers for themselves.
const (
	RoleOwner    = "owner"
	RoleCustomer = "customer"
	RoleSystem   = "system"
)

const (
	Issuer = "groombook"
	leeway = 30 * time.Second
)

func KnownRole(role string) bool {
	switch role {
	case RoleOwner, RoleCustomer, RoleSystem:
		return true
	}
	return false
}

type Claims struct {
	BusinessID string `json:"business_id,omitempty"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// NewClaims builds claims for sub valid for ttl from now.
func NewClaims(sub, businessID, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		BusinessID: businessID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// Validate is called by the parser after the registered claims pass.
func (c Claims) Validate() error {
	if c.Subject == "" {
		return errors.New("missing subject")
	}
	if !KnownRole(c.Role) {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	if c.Role == RoleOwner && c.BusinessID == "" {
		return errors.New("owner token without business")
	}
	return nil
}

func Sign(claims Claims, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is empty")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify checks signature, issuer, expiry and claim shape. Every failure is
// reported as ErrInvalidToken.
func Verify(token, secret string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
