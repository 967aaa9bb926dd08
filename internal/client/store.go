package client

import (
	"sync"
	"time"

	"auth-rotation/internal/token"
)

// SessionStore holds the access credential in memory only. The refresh
// credential never passes through it.
type SessionStore struct {
	mu        sync.RWMutex
	token     string
	subject   string
	expiresAt time.Time // zero when the credential could not be decoded

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int

	clock func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{subs: make(map[int]chan struct{}), clock: time.Now}
}

// AccessToken returns the current credential or "" when there is none.
func (s *SessionStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ExpiresAt reports the decoded expiry. ok is false when none is known.
func (s *SessionStore) ExpiresAt() (exp time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt, !s.expiresAt.IsZero()
}

func (s *SessionStore) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

// SetAccessToken stores tok and decodes its subject and expiry locally. A
// credential that does not decode is still stored, without an expiry.
func (s *SessionStore) SetAccessToken(tok string) {
	d, err := token.DecodeUnverified(tok)
	if err != nil {
		d = token.Decoded{}
	}
	s.mu.Lock()
	s.token, s.subject, s.expiresAt = tok, d.Subject, d.ExpiresAt
	s.mu.Unlock()
}

func (s *SessionStore) Clear() {
	s.mu.Lock()
	s.token, s.subject, s.expiresAt = "", "", time.Time{}
	s.mu.Unlock()
}

// Expired reports whether the credential is absent or past its expiry.
// Unknown expiry counts as expired.
func (s *SessionStore) Expired() bool {
	return s.ExpiringWithin(0)
}

// ExpiringWithin reports whether the credential expires within d of now.
func (s *SessionStore) ExpiringWithin(d time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.expiresAt.IsZero() {
		return true
	}
	return !s.clock().Add(d).Before(s.expiresAt)
}

// Subscribe registers for session-invalidated notifications. Each channel
// holds at most one pending notification. cancel unregisters.
func (s *SessionStore) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Invalidate clears the credential and notifies every subscriber.
func (s *SessionStore) Invalidate() {
	s.Clear()
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
			// One pending notification is enough.
		}
	}
}
