// Package token issues the short-lived media session tokens consumed by the
// platform media engine, keyed by participant identity and room.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the media token claims: who may join which room.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"userId"`
	RoomName string `json:"roomName"`
}

// Issuer signs and verifies media session tokens with an HS256 secret.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewIssuer creates a token issuer. The secret is required; ttl defaults to
// 15 minutes when zero.
func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue signs a token for userID scoped to roomName. Returns the token and
// its expiry.
func (i *Issuer) Issue(now time.Time, userID, roomName string) (string, time.Time, error) {
	if userID == "" || roomName == "" {
		return "", time.Time{}, errors.New("userId and roomName are required")
	}
	expires := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		UserID:   userID,
		RoomName: roomName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Verify parses and validates a token, returning its claims.
func (i *Issuer) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	if claims.UserID == "" {
		return Claims{}, errors.New("userId missing")
	}
	if claims.RoomName == "" {
		return Claims{}, errors.New("roomName missing")
	}
	return claims, nil
}
