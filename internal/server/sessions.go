package server

import (
	"sync"

	"github.com/raaihank/pii-sentry/internal/pii"
	"github.com/raaihank/pii-sentry/internal/redact"
)

// maxSessions bounds the number of scans kept for interactive re-rendering.
const maxSessions = 256

// session keeps one scan's redactor around so toggling the active set can
// re-render without re-scanning.
type session struct {
	result   *pii.AnalysisResult
	redactor *redact.Redactor
}

// sessionStore is an in-memory, bounded map of recent scans. Oldest
// sessions are evicted first.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	order    []string
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (s *sessionStore) put(id string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		s.order = append(s.order, id)
	}
	s.sessions[id] = sess

	for len(s.order) > maxSessions {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.sessions, oldest)
	}
}

func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}
