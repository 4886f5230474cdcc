package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"plant-console/internal/observability/metrics"
)

// DefaultSessionTTL is how long a console session lives without a new login.
const DefaultSessionTTL = 12 * time.Hour

// Session is one logged-in operator.
type Session struct {
	ID            string
	Subject       string
	Role          Role
	UpstreamToken string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock overrides time.Now.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// SessionStore keeps sessions in memory.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore constructs an empty store.
func NewSessionStore(opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]Session),
		ttl:      DefaultSessionTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a session for subject holding the upstream bearer token.
func (s *SessionStore) Create(subject string, role Role, upstreamToken string) Session {
	now := s.now().UTC()
	session := Session{
		ID:            uuid.NewString(),
		Subject:       subject,
		Role:          role,
		UpstreamToken: upstreamToken,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[session.ID] = session
	metrics.SetSessionsActive(len(s.sessions))
	s.mu.Unlock()
	return session
}

// Get returns a live session.
func (s *SessionStore) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.Expired(s.now()) {
		return Session{}, false
	}
	return session, true
}

// Delete ends a session.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	metrics.SetSessionsActive(len(s.sessions))
	return ok
}

// Sweep drops expired sessions and returns their ids.
func (s *SessionStore) Sweep() []string {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for id, session := range s.sessions {
		if session.Expired(now) {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	metrics.SetSessionsActive(len(s.sessions))
	return expired
}

// Len returns the number of stored sessions, expired ones included until swept.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
