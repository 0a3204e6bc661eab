package ws_room

import (
	"sync"

	"github.com/google/uuid"
)

type sessionKey struct {
	roomID   uuid.UUID
	playerID string
}

type session struct {
	mu   sync.Mutex
	open int // sockets attached for the player

	refs int // guarded by sessions.mu
}

// sessions counts the sockets each player has open in a room, so a player
// with overlapping sockets stays connected until the last one closes.
// Attach and detach for one player are serialized; different players never
// wait on each other.
type sessions struct {
	mu sync.Mutex
	m  map[sessionKey]*session
}

func newSessions() *sessions {
	return &sessions{m: make(map[sessionKey]*session)}
}

func (s *sessions) acquire(key sessionKey) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.m[key]
	if !ok {
		sess = &session{}
		s.m[key] = sess
	}
	sess.refs++
	return sess
}

func (s *sessions) release(key sessionKey, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.refs--
	if sess.refs == 0 {
		delete(s.m, key)
	}
}

// attach runs connect and counts the socket only if connect succeeds.
// The returned session must be handed back to detach.
func (s *sessions) attach(key sessionKey, connect func() error) (*session, error) {
	sess := s.acquire(key)

	sess.mu.Lock()
	err := connect()
	if err == nil {
		sess.open++
	}
	sess.mu.Unlock()

	if err != nil {
		s.release(key, sess)
		return nil, err
	}
	return sess, nil
}

// detach runs disconnect when the last socket of the player goes away.
func (s *sessions) detach(key sessionKey, sess *session, disconnect func()) {
	sess.mu.Lock()
	sess.open--
	if sess.open == 0 {
		disconnect()
	}
	sess.mu.Unlock()

	s.release(key, sess)
}

func (s *sessions) tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
