package auth

import (
	"sync"
	"time"
)

// DefaultPendingTTL bounds how long an in-flight SAML handshake may take
// before the gateway forgets about it.
const DefaultPendingTTL = 10 * time.Minute

// PendingLogin records an AuthnRequest that has been sent to an IdP and is
// awaiting the assertion callback. Keyed by a browser cookie so the ACS
// endpoint can recover the submitted email and expected request ID.
type PendingLogin struct {
	Token     string
	RequestID string
	Email     string
	IdPSlug   string
	ExpiresAt time.Time
}

// PendingStore tracks in-flight logins. Entries are one-shot: Consume
// removes them.
type PendingStore struct {
	mu      sync.Mutex
	pending map[string]*PendingLogin
	ttl     time.Duration
}

// NewPendingStore creates a PendingStore with the given TTL; zero means
// DefaultPendingTTL.
func NewPendingStore(ttl time.Duration) *PendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &PendingStore{
		pending: make(map[string]*PendingLogin),
		ttl:     ttl,
	}
}

// Put records a pending login under a fresh token and returns it.
func (p *PendingStore) Put(requestID, email, idpSlug string) (*PendingLogin, error) {
	token, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	entry := &PendingLogin{
		Token:     token,
		RequestID: requestID,
		Email:     email,
		IdPSlug:   idpSlug,
		ExpiresAt: time.Now().Add(p.ttl),
	}

	p.mu.Lock()
	p.pending[token] = entry
	p.mu.Unlock()
	return entry, nil
}

// Consume removes and returns the pending login for a token. Returns nil for
// unknown or expired tokens.
func (p *PendingStore) Consume(token string) *PendingLogin {
	if token == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.pending[token]
	if !ok {
		return nil
	}
	delete(p.pending, token)
	if time.Now().After(entry.ExpiresAt) {
		return nil
	}
	return entry
}

// Cleanup removes expired entries and returns how many were dropped.
func (p *PendingStore) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	now := time.Now()
	for token, entry := range p.pending {
		if now.After(entry.ExpiresAt) {
			delete(p.pending, token)
			count++
		}
	}
	return count
}

// Len returns the number of pending entries, for tests and monitoring.
func (p *PendingStore) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
