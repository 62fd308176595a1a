// Package session holds the single authenticated session of the process
// and recovers it from local storage at startup.
package session

import (
	"sync"

	"github.com/abrezinsky/votedesk/internal/errors"
	"github.com/abrezinsky/votedesk/internal/tokens"
)

// Snapshot is a consistent copy of the session state.
// Claims is non-nil exactly when Token is non-empty.
type Snapshot struct {
	Token       string
	Claims      *tokens.Claims
	Initialized bool
}

// Authenticated reports whether the snapshot carries credentials.
func (s Snapshot) Authenticated() bool {
	return s.Token != "" && s.Claims != nil
}

// Store is the process-wide session context. It is passed explicitly to the
// components that read it; only the initializer, login and logout mutate it.
type Store struct {
	mu          sync.RWMutex
	token       string
	claims      *tokens.Claims
	initialized bool
	ready       chan struct{}
	readyOnce   sync.Once
}

// NewStore returns an empty, uninitialized store.
func NewStore() *Store {
	return &Store{ready: make(chan struct{})}
}

// SetAuthenticated replaces the session with token and its decoded claims.
func (s *Store) SetAuthenticated(token string, claims tokens.Claims) error {
	if token == "" {
		return errors.InvalidInput("cannot set a session without a token")
	}

	c := claims
	s.mu.Lock()
	s.token = token
	s.claims = &c
	s.mu.Unlock()
	return nil
}

// Clear drops the credentials. The initialized flag is left as is.
func (s *Store) Clear() {
	s.mu.Lock()
	s.token = ""
	s.claims = nil
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Token: s.token, Initialized: s.initialized}
	if s.claims != nil {
		c := *s.claims
		snap.Claims = &c
	}
	return snap
}

// Token returns the bearer token, or "" without a session.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Ready is closed once the session has been initialized.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

func (s *Store) markInitialized() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
}
