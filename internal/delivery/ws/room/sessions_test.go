package ws_room

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsDisconnectOnLastDetach(t *testing.T) {
	s := newSessions()
	key := sessionKey{roomID: uuid.New(), playerID: "p2"}
	connects, disconnects := 0, 0
	connect := func() error { connects++; return nil }
	disconnect := func() { disconnects++ }

	first, err := s.attach(key, connect)
	require.NoError(t, err)
	second, err := s.attach(key, connect)
	require.NoError(t, err)
	assert.Equal(t, 2, connects)

	s.detach(key, first, disconnect)
	assert.Zero(t, disconnects)

	s.detach(key, second, disconnect)
	assert.Equal(t, 1, disconnects)
	assert.Zero(t, s.tracked())
}

func TestSessionsFailedAttachIsNotCounted(t *testing.T) {
	s := newSessions()
	key := sessionKey{roomID: uuid.New(), playerID: "mallory"}
	boom := errors.New("not a member")

	sess, err := s.attach(key, func() error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, sess)
	assert.Zero(t, s.tracked())
}

func TestSessionsConcurrentChurn(t *testing.T) {
	s := newSessions()
	key := sessionKey{roomID: uuid.New(), playerID: "p2"}

	var mu sync.Mutex
	connected := false
	connect := func() error {
		mu.Lock()
		defer mu.Unlock()
		connected = true
		return nil
	}
	disconnect := func() {
		mu.Lock()
		defer mu.Unlock()
		connected = false
	}

	keeper, err := s.attach(key, connect)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := s.attach(key, connect)
			if err != nil {
				return
			}
			s.detach(key, sess, disconnect)
		}()
	}
	wg.Wait()

	mu.Lock()
	assert.True(t, connected)
	mu.Unlock()

	s.detach(key, keeper, disconnect)
	assert.False(t, connected)
	assert.Zero(t, s.tracked())
}
