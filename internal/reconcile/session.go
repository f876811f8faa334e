// Package reconcile keeps local state and the remote store loosely in step:
// a one-shot pull at startup and a background push queue for local mutations.
package reconcile

import "sync"

// Session holds process-lifetime sync state. Engines sharing a Session pull
// from the remote at most once per scope; separate Sessions never interfere.
type Session struct {
	mu     sync.Mutex
	synced map[string]bool
}

func NewSession() *Session {
	return &Session{synced: make(map[string]bool)}
}

// claim marks scope as synced and reports whether the caller got there first.
func (s *Session) claim(scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.synced[scope] {
		return false
	}
	s.synced[scope] = true
	return true
}

// HasSynced reports whether a startup pull was started for scope.
func (s *Session) HasSynced(scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced[scope]
}
