// Package staff manages passcode-authenticated bearer sessions for the
// moderation console. Sessions expire after a fixed TTL and are renewed
// only by an explicit keepalive, never by other activity.
package staff

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kiosk-orchestrator-service/internal/clock"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 180 * time.Second

var (
	// ErrMisconfigured means no staff passcode is configured at all.
	ErrMisconfigured = errors.New("staff passcode is not configured")
	// ErrUnauthorized means the passcode or token did not match a live session.
	ErrUnauthorized = errors.New("unauthorized")
)

// Session is one issued bearer credential.
type Session struct {
	Token       string
	CreatedAtMs int64
	ExpiresAtMs int64
}

// Registry holds the live staff sessions.
type Registry struct {
	mu       sync.Mutex
	passcode string
	ttl      time.Duration
	clk      clock.Clock
	ids      clock.IDGenerator
	sessions map[string]Session
	log      zerolog.Logger
}

// NewRegistry creates a registry checking against the single configured
// passcode. An empty passcode makes every login fail with ErrMisconfigured.
func NewRegistry(passcode string, ttl time.Duration, clk clock.Clock, ids clock.IDGenerator, logger zerolog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		passcode: passcode,
		ttl:      ttl,
		clk:      clk,
		ids:      ids,
		sessions: make(map[string]Session),
		log:      logger.With().Str("component", "staff").Logger(),
	}
}

// TTL returns the configured session lifetime.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// MaxAgeSeconds is the cookie Max-Age matching the TTL.
func (r *Registry) MaxAgeSeconds() int {
	return int(r.ttl / time.Second)
}

// Login issues a new session when passcode matches the configured secret.
func (r *Registry) Login(passcode string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.passcode == "" {
		return Session{}, ErrMisconfigured
	}
	if passcode != r.passcode {
		r.log.Warn().Msg("Staff login rejected: passcode mismatch")
		return Session{}, ErrUnauthorized
	}

	now := r.clk.Now()
	s := Session{
		Token:       r.ids.NewID(),
		CreatedAtMs: now.UnixMilli(),
		ExpiresAtMs: now.Add(r.ttl).UnixMilli(),
	}
	r.sessions[s.Token] = s
	r.log.Info().Int64("expiresAtMs", s.ExpiresAtMs).Msg("Staff session issued")
	return s, nil
}

// Keepalive extends a live session's expiry to now+TTL, measured from this
// call. Unknown or already-expired tokens return ErrUnauthorized.
func (r *Registry) Keepalive(token string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	now := r.clk.Now()
	if !ok || now.UnixMilli() >= s.ExpiresAtMs {
		delete(r.sessions, token)
		return Session{}, ErrUnauthorized
	}

	s.ExpiresAtMs = now.Add(r.ttl).UnixMilli()
	r.sessions[token] = s
	return s, nil
}

// Valid reports whether token names a session that has not expired as of
// now. It never extends the session.
func (r *Registry) Valid(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	return ok && r.clk.Now().UnixMilli() < s.ExpiresAtMs
}

// Purge drops expired sessions and returns how many were removed.
func (r *Registry) Purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now().UnixMilli()
	n := 0
	for token, s := range r.sessions {
		if now >= s.ExpiresAtMs {
			delete(r.sessions, token)
			n++
		}
	}
	return n
}
