package roomfeed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/humanbelnik/towerduels/internal/logger"
	"github.com/humanbelnik/towerduels/internal/model"
	"go.uber.org/zap"
)

// Feed fans room snapshots out to the subscribers of each room.
// Publishing never blocks on a slow subscriber: a subscriber only ever holds
// the newest snapshot it has not consumed yet.
type Feed struct {
	mu sync.RWMutex

	// Keep track of sets of subscriptions within each room
	rooms map[uuid.UUID]map[*Subscription]struct{}

	logger *zap.Logger
}

func New() *Feed {
	return &Feed{
		rooms:  make(map[uuid.UUID]map[*Subscription]struct{}),
		logger: logger.L().Named("roomfeed"),
	}
}

// Subscribe registers a subscription for roomID. It is released by Close or
// when ctx is done, whichever happens first.
func (f *Feed) Subscribe(ctx context.Context, roomID uuid.UUID) *Subscription {
	sub := &Subscription{
		feed:   f,
		roomID: roomID,
		ch:     make(chan model.Snapshot, 1),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	if _, ok := f.rooms[roomID]; !ok {
		f.rooms[roomID] = make(map[*Subscription]struct{})
	}
	f.rooms[roomID][sub] = struct{}{}
	f.mu.Unlock()

	stop := context.AfterFunc(ctx, sub.Close)
	sub.mu.Lock()
	sub.stop = stop
	sub.mu.Unlock()

	f.logger.Debug("subscription registered", zap.String("room_id", roomID.String()))
	return sub
}

func (f *Feed) Publish(_ context.Context, s model.Snapshot) error {
	f.mu.RLock()
	subs := make([]*Subscription, 0, len(f.rooms[s.ID]))
	for sub := range f.rooms[s.ID] {
		subs = append(subs, sub)
	}
	f.mu.RUnlock()

	// Offer may close the subscription, which takes f.mu.
	for _, sub := range subs {
		sub.Offer(s)
	}
	return nil
}

// Subscribers returns the number of live subscriptions for roomID.
func (f *Feed) Subscribers(roomID uuid.UUID) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms[roomID])
}

func (f *Feed) remove(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if room, ok := f.rooms[sub.roomID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(f.rooms, sub.roomID)
		}
	}
	f.logger.Debug("subscription released", zap.String("room_id", sub.roomID.String()))
}
