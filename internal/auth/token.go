package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for missing, expired or tampered tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload issued by the storefront's login flow.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens verifies and mints HS256 session tokens.
type Tokens struct {
	secret []byte
	leeway time.Duration
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), leeway: 30 * time.Second}
}

// Verify parses raw and returns the identity it carries.
func (t *Tokens) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(t.leeway),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: missing userId claim", ErrInvalidToken)
	}

	return Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

// Mint issues a token for id valid for ttl.
func (t *Tokens) Mint(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
