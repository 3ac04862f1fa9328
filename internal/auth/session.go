// Package auth provides session management for the SSO gateway. Sessions are
// established only after a successful SAML handshake; there are no local
// passwords.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// Session errors.
var (
	// ErrSessionNotFound indicates the session was not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session has expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidSession indicates the session is invalid.
	ErrInvalidSession = errors.New("invalid session")
)

// DefaultSessionDuration is the default session lifetime.
const DefaultSessionDuration = 8 * time.Hour

// SessionIDLength is the number of random bytes used for session IDs.
const SessionIDLength = 32

// Session represents an authenticated browser session. Email is the SAML
// subject, IdPSlug names the provider that asserted it.
type Session struct {
	ID         string            `json:"id"`
	Email      string            `json:"email"`
	Name       string            `json:"name,omitempty"`
	IdPSlug    string            `json:"idp_slug"`
	NameID     string            `json:"name_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsValid returns true if the session is valid (not expired and has required fields).
func (s *Session) IsValid() bool {
	return s.ID != "" && s.Email != "" && !s.IsExpired()
}

// TimeRemaining returns the duration until the session expires.
// Returns 0 if the session has already expired.
func (s *Session) TimeRemaining() time.Duration {
	remaining := time.Until(s.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SessionStore defines the interface for session persistence.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by its ID.
	// Returns nil, nil if not found.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session by its ID.
	Delete(ctx context.Context, id string) error

	// DeleteByEmail removes all sessions for a subject.
	DeleteByEmail(ctx context.Context, email string) error

	// Cleanup removes all expired sessions.
	// Returns the number of sessions removed.
	Cleanup(ctx context.Context) (int, error)
}

// MemorySessionStore is an in-memory implementation of SessionStore.
// It is thread-safe and suitable for single-instance deployments.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by session ID

	// emailIndex maps subject email to session IDs for fast lookup
	emailIndex map[string]map[string]struct{}
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:   make(map[string]*Session),
		emailIndex: make(map[string]map[string]struct{}),
	}
}

// Create stores a new session.
func (s *MemorySessionStore) Create(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" || session.Email == "" {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return ErrInvalidSession
	}

	// Store a copy to prevent external mutation
	stored := copySession(session)
	s.sessions[session.ID] = stored

	if s.emailIndex[session.Email] == nil {
		s.emailIndex[session.Email] = make(map[string]struct{})
	}
	s.emailIndex[session.Email][session.ID] = struct{}{}

	return nil
}

// Get retrieves a session by its ID.
// Returns nil, nil if not found.
// Returns an error if the session is expired.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}

	s.mu.RLock()
	session, exists := s.sessions[id]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	if session.IsExpired() {
		return nil, ErrSessionExpired
	}

	return copySession(session), nil
}

// Delete removes a session by its ID.
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}

	s.dropFromIndexLocked(session.Email, id)
	delete(s.sessions, id)
	return nil
}

// DeleteByEmail removes all sessions for a subject.
func (s *MemorySessionStore) DeleteByEmail(_ context.Context, email string) error {
	if email == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessionIDs, exists := s.emailIndex[email]
	if !exists {
		return nil
	}

	for sessionID := range sessionIDs {
		delete(s.sessions, sessionID)
	}
	delete(s.emailIndex, email)

	return nil
}

// Cleanup removes all expired sessions.
// Returns the number of sessions removed.
func (s *MemorySessionStore) Cleanup(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()

	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			s.dropFromIndexLocked(session.Email, id)
			delete(s.sessions, id)
			count++
		}
	}

	return count, nil
}

// Count returns the total number of sessions in the store.
// This is primarily for testing and monitoring.
func (s *MemorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemorySessionStore) dropFromIndexLocked(email, id string) {
	if s.emailIndex[email] == nil {
		return
	}
	delete(s.emailIndex[email], id)
	if len(s.emailIndex[email]) == 0 {
		delete(s.emailIndex, email)
	}
}

// copySession creates a deep copy of a Session.
func copySession(session *Session) *Session {
	if session == nil {
		return nil
	}

	cpy := &Session{
		ID:        session.ID,
		Email:     session.Email,
		Name:      session.Name,
		IdPSlug:   session.IdPSlug,
		NameID:    session.NameID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}

	if session.Attributes != nil {
		cpy.Attributes = make(map[string]string, len(session.Attributes))
		for k, v := range session.Attributes {
			cpy.Attributes[k] = v
		}
	}

	return cpy
}

// GenerateSessionID generates a cryptographically secure session ID.
func GenerateSessionID() (string, error) {
	bytes := make([]byte, SessionIDLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// NewSession creates a Session for an authenticated SAML subject.
// It generates a new session ID and sets creation/expiration times.
func NewSession(email, name, idpSlug, nameID string, duration time.Duration, attrs map[string]string) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	if duration <= 0 {
		duration = DefaultSessionDuration
	}

	now := time.Now().UTC()
	session := &Session{
		ID:        id,
		Email:     email,
		Name:      name,
		IdPSlug:   idpSlug,
		NameID:    nameID,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
	}

	if attrs != nil {
		session.Attributes = make(map[string]string, len(attrs))
		for k, v := range attrs {
			session.Attributes[k] = v
		}
	}

	return session, nil
}
