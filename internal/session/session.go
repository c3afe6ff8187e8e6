// Package session holds the authentication state consulted by the download
// pipeline and the QR login flow that produces it. The login flow is the only
// writer; every reader works on a copy.
package session

import (
	"sync"
	"time"
)

// Session is the current authentication state
type Session struct {
	Authenticated bool      `json:"authenticated"`
	VIP           bool      `json:"vip"`
	CookieRef     string    `json:"cookie_ref,omitempty"` // cookie file path
	Username      string    `json:"username,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Status is what the backend reports for a cookie set
type Status struct {
	LoggedIn  bool
	VIP       bool
	VipType   int
	Username  string
	AccountID int64
}

// Store keeps the published session
type Store struct {
	mu      sync.RWMutex
	current Session
}

// NewStore creates a store holding an unauthenticated session
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns a copy of the current session
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Publish replaces the current session
func (s *Store) Publish(sess Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

// Apply publishes the session described by a backend status
func (s *Store) Apply(cookieRef string, st Status) Session {
	sess := Session{
		Authenticated: st.LoggedIn,
		VIP:           st.LoggedIn && st.VIP,
		CookieRef:     cookieRef,
		Username:      st.Username,
		CheckedAt:     time.Now(),
	}
	s.Publish(sess)
	return sess
}
