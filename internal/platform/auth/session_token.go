package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	sessionTokenIssuer = "muse-miniapp"
	defaultSessionTTL  = 12 * time.Hour
)

var (
	// ErrSessionTokenInvalid signals a malformed or tampered session token.
	ErrSessionTokenInvalid = errors.New("auth: session token invalid")
	// ErrSessionTokenExpired signals an expired session token.
	ErrSessionTokenExpired = errors.New("auth: session token expired")
)

type sessionClaims struct {
	SessionID string `json:"sid"`
	Admin     bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// SessionTokens issues and verifies HS256 session tokens binding a user to a storefront session.
type SessionTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSessionTokens constructs the token codec.
func NewSessionTokens(signingKey string, ttl time.Duration) (*SessionTokens, error) {
	if strings.TrimSpace(signingKey) == "" {
		return nil, errors.New("auth: session signing key is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionTokens{key: []byte(signingKey), ttl: ttl, now: time.Now}, nil
}

// WithClock returns a copy using the supplied clock.
func (s *SessionTokens) WithClock(now func() time.Time) *SessionTokens {
	clone := *s
	if now != nil {
		clone.now = now
	}
	return &clone
}

// Issue signs a token for the identity and returns its expiry.
func (s *SessionTokens) Issue(identity Identity) (string, time.Time, error) {
	if identity.UserID <= 0 || strings.TrimSpace(identity.SessionID) == "" {
		return "", time.Time{}, errors.New("auth: identity requires user and session ids")
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.ttl)
	claims := sessionClaims{
		SessionID: identity.SessionID,
		Admin:     identity.AdminEligible,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionTokenIssuer,
			Subject:   identity.Subject(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the token and returns the embedded identity.
func (s *SessionTokens) Parse(token string) (*Identity, error) {
	claims := &sessionClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionTokenInvalid, err)
	}
	if !claims.VerifyExpiresAt(s.now(), true) {
		return nil, ErrSessionTokenExpired
	}
	if !parsed.Valid || claims.Issuer != sessionTokenIssuer || claims.SessionID == "" {
		return nil, ErrSessionTokenInvalid
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrSessionTokenInvalid
	}
	return &Identity{UserID: userID, SessionID: claims.SessionID, AdminEligible: claims.Admin}, nil
}
