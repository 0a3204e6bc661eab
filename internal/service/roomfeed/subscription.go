package roomfeed

import (
	"sync"

	"github.com/google/uuid"
	"github.com/humanbelnik/towerduels/internal/model"
)

type Subscription struct {
	feed   *Feed
	roomID uuid.UUID

	mu      sync.Mutex
	ch      chan model.Snapshot
	done    chan struct{}
	closed  bool
	version int64
	stop    func() bool
}

func (s *Subscription) RoomID() uuid.UUID { return s.roomID }

// C delivers snapshots in increasing version order. It is closed after Close
// or after a terminal snapshot.
func (s *Subscription) C() <-chan model.Snapshot { return s.ch }

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Offer queues snap unless the subscriber has already been offered the same
// or a newer version. A pending, unconsumed snapshot is replaced.
// A terminal snapshot is the last one: the subscription closes behind it
// and C yields it before reporting closed.
func (s *Subscription) Offer(snap model.Snapshot) bool {
	s.mu.Lock()
	if s.closed || snap.Version <= s.version {
		s.mu.Unlock()
		return false
	}

	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
	s.version = snap.Version
	s.mu.Unlock()

	if snap.Status.Terminal() {
		s.Close()
	}
	return true
}

func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	close(s.done)
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.feed.remove(s)
}
