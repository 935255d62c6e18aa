// Package auth issues and parses the bearer tokens handed out at login.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long an access token stays valid.
const TokenTTL = 120 * time.Minute

// TokenType is reported alongside issued tokens.
const TokenType = "bearer"

var ErrInvalidToken = errors.New("invalid or expired token")

// jwtClaims is the JWT payload; the subject is the employee number.
type jwtClaims struct {
	jwt.RegisteredClaims
}

// Tokens signs HS256 access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a signer using secret. ttl <= 0 selects TokenTTL.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = TokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token whose subject is empNumber.
func (t *Tokens) Issue(empNumber string) (string, error) {
	now := t.now()
	claims := &jwtClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   empNumber,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Subject validates raw and returns its employee number.
func (t *Tokens) Subject(raw string) (string, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
