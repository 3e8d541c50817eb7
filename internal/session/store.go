package session

import "sync"

// Session is the per-chat state kept for the lifetime of the process.
type Session struct {
	ChatID       int64
	LastResponse string
	HasResponse  bool
}

// Store owns every Session. Callers get copies; the only mutator is
// SetLastResponse, which is a single locked assignment.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns the session for chatID and whether it exists.
func (s *Store) Get(chatID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		return Session{ChatID: chatID}, false
	}
	return *sess, true
}

// SetLastResponse records text as the latest reply for chatID, creating the
// session on first use.
func (s *Store) SetLastResponse(chatID int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &Session{ChatID: chatID}
		s.sessions[chatID] = sess
	}
	sess.LastResponse = text
	sess.HasResponse = true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
