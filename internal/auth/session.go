package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionCookieName is the cookie holding the opaque session token.
const SessionCookieName = "ams_session"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMissingToken    = errors.New("missing session token")
)

// Session is a persisted sign-in. Only the SHA-256 hash of the token is stored.
type Session struct {
	TokenHash string
	UserWCAID string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

type SessionStore interface {
	CreateSession(ctx context.Context, session Session) error
	// ActorForSession returns ErrSessionNotFound for unknown or expired sessions.
	ActorForSession(ctx context.Context, tokenHash string, now time.Time) (*Actor, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

// Sessions issues and resolves opaque session tokens.
type Sessions struct {
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

func NewSessions(store SessionStore, ttl time.Duration) *Sessions {
	return &Sessions{store: store, ttl: ttl, now: time.Now}
}

// TTL is the lifetime of new sessions.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Start creates a session for the user and returns the raw token for the cookie.
func (s *Sessions) Start(ctx context.Context, wcaID, ipAddress, userAgent string) (string, time.Time, error) {
	if strings.TrimSpace(wcaID) == "" {
		return "", time.Time{}, fmt.Errorf("start session: wca id is required")
	}
	token, err := GenerateToken(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("start session: %w", err)
	}

	now := s.now().UTC()
	session := Session{
		TokenHash: HashToken(token),
		UserWCAID: wcaID,
		ExpiresAt: now.Add(s.ttl),
		IPAddress: ipAddress,
		UserAgent: truncate(userAgent, 512),
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}
	return token, session.ExpiresAt, nil
}

// Resolve returns the actor owning a live session token.
func (s *Sessions) Resolve(ctx context.Context, token string) (*Actor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	return s.store.ActorForSession(ctx, HashToken(token), s.now().UTC())
}

// End deletes the session. Unknown tokens are not an error.
func (s *Sessions) End(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	err := s.store.DeleteSession(ctx, HashToken(token))
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// GenerateToken returns n random bytes encoded as unpadded base64url.
func GenerateToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest stored in place of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
