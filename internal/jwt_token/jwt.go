// Package jwttoken signs the browser session cookie. The token's subject is
// the browser session id that scopes session-durable storage.
package jwttoken

import (
	"crypto/sha256"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	id "idverify/pkg/domain"
	dErrors "idverify/pkg/domain-errors"
)

const leeway = 5 * time.Second

type Claims struct {
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens for one issuer/audience pair.
type Signer struct {
	key      []byte
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewSigner derives the HMAC key from secret with HKDF-SHA256, salted with
// the issuer and bound to the audience.
func NewSigner(secret, issuer, audience string) *Signer {
	return &Signer{
		key:      deriveKey(secret, issuer, audience),
		issuer:   issuer,
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}
}

func deriveKey(secret, issuer, audience string) []byte {
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(secret), []byte(issuer), []byte("session-token:"+audience))
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255 blocks of output
		panic("jwttoken: derive key: " + err.Error())
	}
	return key
}

// Issue signs a token for sessionID valid from now for ttl.
func (s *Signer) Issue(sessionID id.BrowserSessionID, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sessionID.String(),
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign session token")
	}
	return signed, nil
}

// Parse verifies the signature and registered claims.
func (s *Signer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

// SessionID returns the browser session a valid token was issued for.
func (s *Signer) SessionID(token string) (id.BrowserSessionID, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return id.BrowserSessionID{}, err
	}
	sessionID, err := id.ParseBrowserSessionID(claims.Subject)
	if err != nil {
		return id.BrowserSessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return sessionID, nil
}
