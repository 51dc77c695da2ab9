// Package signlink mints and verifies the signing-link tokens mailed
// to participants. A token binds one session to one step so a link
// can only ever act for the signer it was sent to.
package signlink

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Common errors
var (
	ErrBadToken     = errors.New("signing link is invalid")
	ErrExpiredToken = errors.New("signing link has expired")
)

// DefaultTTL is how long a freshly issued link stays valid.
const DefaultTTL = 14 * 24 * time.Hour

// Link identifies what a verified token grants access to.
type Link struct {
	SessionID string
	Step      int
}

// Issuer signs and verifies link tokens with a shared HMAC key.
type Issuer struct {
	key   []byte
	ttl   time.Duration
	clock clockwork.Clock
}

// NewIssuer creates an issuer. A zero ttl falls back to DefaultTTL.
func NewIssuer(key []byte, ttl time.Duration, clock clockwork.Clock) *Issuer {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Issuer{key: key, ttl: ttl, clock: clock}
}

type linkClaims struct {
	Step int `json:"step"`
	jwt.RegisteredClaims
}

// Issue generates a signed token granting access to one step of one
// session.
func (i *Issuer) Issue(sessionID string, step int) (string, error) {
	now := i.clock.Now()
	claims := linkClaims{
		Step: step,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign link token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns what the token
// grants. Expired tokens report ErrExpiredToken; anything else wrong
// with the token reports ErrBadToken.
func (i *Issuer) Verify(token string) (Link, error) {
	var claims linkClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return i.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Link{}, ErrExpiredToken
		}
		return Link{}, ErrBadToken
	}
	if !parsed.Valid || claims.Subject == "" || claims.Step < 0 {
		return Link{}, ErrBadToken
	}
	return Link{SessionID: claims.Subject, Step: claims.Step}, nil
}
