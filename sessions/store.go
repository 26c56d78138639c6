package sessions

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResumeStatus classifies the outcome of resuming a session by id.
type ResumeStatus int

const (
	// ResumeOK means the session exists and the request addresses match.
	ResumeOK ResumeStatus = iota
	// ResumeUnknown means no session with that id exists.
	ResumeUnknown
	// ResumeHijacked means the id exists but the request came from a
	// different origin or proxy address. The session has been torn down.
	ResumeHijacked
)

// Store is the process-wide session registry. A single coarse mutex guards
// the map; every check-then-act sequence runs as one critical section.
type Store struct {
	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore builds an empty store.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session pinned to the given origin and proxy
// address and bound to handle. The returned session id is unguessable.
func (s *Store) Create(origin, proxyAddr, authMethod, principal string, handle Handle) *Session {
	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		Origin:     origin,
		ProxyAddr:  proxyAddr,
		AuthMethod: authMethod,
		Principal:  principal,
		CreatedAt:  now,
		lastSeen:   now,
		handle:     handle,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.log.Info("session.create",
		slog.String("sess_id", sess.ID),
		slog.String("origin", origin),
		slog.String("proxy_addr", proxyAddr),
		slog.String("auth_method", authMethod),
	)
	return sess
}

// Resume looks up the session and validates that the request's origin and
// proxy address both match the values recorded at creation. A match renews
// the idle clock. A mismatch removes the session immediately; the stale
// handle is closed before returning.
func (s *Store) Resume(id, origin, proxyAddr string) (*Session, ResumeStatus) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, ResumeUnknown
	}
	if sess.Origin != origin || sess.ProxyAddr != proxyAddr {
		delete(s.sessions, id)
		s.mu.Unlock()
		s.log.Warn("session.hijack",
			slog.String("sess_id", id),
			slog.String("want_origin", sess.Origin),
			slog.String("got_origin", origin),
			slog.String("want_proxy", sess.ProxyAddr),
			slog.String("got_proxy", proxyAddr),
		)
		s.closeHandle(sess)
		return nil, ResumeHijacked
	}
	sess.lastSeen = s.now()
	s.mu.Unlock()
	return sess, ResumeOK
}

// Remove deletes the session and closes its handle. Removing an id that is
// already gone is a no-op, so explicit termination and the reaper can race
// safely.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.closeHandle(sess)
	s.log.Info("session.remove", slog.String("sess_id", id))
	return true
}

// Sweep removes every session idle for longer than idleFor and reports how
// many were removed. Removal goes through the same path as Remove.
func (s *Store) Sweep(idleFor time.Duration) int {
	cutoff := s.now().Add(-idleFor)

	s.mu.Lock()
	var stale []string
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	removed := 0
	for _, id := range stale {
		if s.Remove(id) {
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// closeHandle runs outside the store mutex: a slow handle teardown must not
// stall unrelated sessions.
func (s *Store) closeHandle(sess *Session) {
	if sess.handle == nil {
		return
	}
	if err := sess.handle.Close(); err != nil {
		s.log.Warn("session.handle.close.fail",
			slog.String("sess_id", sess.ID),
			slog.String("err", err.Error()),
		)
	}
}
