// Package auth verifies access tokens issued by the hosted auth provider and
// carries the resulting Session explicitly through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrRevoked      = errors.New("auth: session revoked")
	ErrNoSession    = errors.New("auth: no session in context")
	ErrDisabled     = errors.New("auth: verification disabled")
)

const RoleAdmin = "admin"

// Claims mirrors the hosted provider's access token payload.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// Session is the authenticated user for one request.
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

// Verifier validates HS256 tokens and consults the revocation list.
type Verifier struct {
	secret      []byte
	issuer      string
	revocations Revocations
	now         func() time.Time
}

func NewVerifier(secret, issuer string, revocations Revocations) *Verifier {
	if revocations == nil {
		revocations = NewMemoryRevocations()
	}
	return &Verifier{
		secret:      []byte(secret),
		issuer:      issuer,
		revocations: revocations,
		now:         time.Now,
	}
}

// Verify parses a raw token into a Session. Revoked sessions are rejected.
func (v *Verifier) Verify(ctx context.Context, raw string) (Session, error) {
	if v == nil || len(v.secret) == 0 {
		return Session{}, ErrDisabled
	}
	if raw == "" {
		return Session{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: subject required", ErrInvalidToken)
	}

	sess := Session{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}
	if sess.SessionID == "" {
		sess.SessionID = claims.ID
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}

	if sess.SessionID != "" {
		revoked, err := v.revocations.IsRevoked(ctx, sess.SessionID)
		if err != nil {
			return Session{}, fmt.Errorf("auth: check revocation: %w", err)
		}
		if revoked {
			return Session{}, ErrRevoked
		}
	}
	return sess, nil
}

// SignOut tears the session down; tokens carrying its id stop verifying.
func (v *Verifier) SignOut(ctx context.Context, sess Session) error {
	if sess.SessionID == "" {
		return fmt.Errorf("%w: token carries no session id", ErrInvalidToken)
	}
	until := sess.ExpiresAt
	if until.IsZero() || !until.After(v.now()) {
		until = v.now().Add(time.Hour)
	}
	return v.revocations.Revoke(ctx, sess.SessionID, until)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

type contextKey string

const sessionKey contextKey = "authSession"

// WithSession stores the session on ctx.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// FromContext returns the request's session.
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok
}
