package usecase_room_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	infra_memory_room "github.com/humanbelnik/towerduels/internal/infra/memory/room"
	"github.com/humanbelnik/towerduels/internal/model"
	"github.com/humanbelnik/towerduels/internal/service/roomfeed"
	usecase_room "github.com/humanbelnik/towerduels/internal/usecase/room"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type UsecaseRoomScenarioSuite struct {
	suite.Suite
}

func newUsecase(opts ...usecase_room.Option) (*usecase_room.Usecase, *roomfeed.Feed) {
	feed := roomfeed.New()
	return usecase_room.New(infra_memory_room.New(), feed, opts...), feed
}

func fixedCode(code string) usecase_room.Option {
	return usecase_room.WithCodeGenerator(func() string { return code })
}

func (s *UsecaseRoomScenarioSuite) TestTwoPlayerLifecycle(t provider.T) {
	t.Parallel()
	uc, _ := newUsecase(fixedCode("42"))
	ctx := context.Background()

	roomID, code, err := uc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "42", code)

	snap, err := uc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, snap.Status)
	assert.False(t, snap.Ready)

	snap, err = uc.JoinRoom(ctx, code, "p2")
	require.NoError(t, err)
	assert.Equal(t, roomID, snap.ID)
	assert.Equal(t, model.StatusPlaying, snap.Status)
	assert.True(t, snap.Ready)
	assert.NotNil(t, snap.StartedAt)

	_, err = uc.JoinRoom(ctx, code, "p3")
	assert.ErrorIs(t, err, usecase_room.ErrRoomFull)

	_, err = uc.JoinRoom(ctx, "99999", "p3")
	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound)

	snap, err = uc.FinishRoom(ctx, roomID, model.StatusFinished)
	require.NoError(t, err)
	assert.Empty(t, snap.Players)

	_, err = uc.GetRoom(ctx, code)
	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound)

	_, err = uc.FinishRoom(ctx, roomID, model.StatusAbandoned)
	assert.ErrorIs(t, err, usecase_room.ErrInvalidTransition)

	// A closed room frees its code.
	newID, newCode, err := uc.CreateRoom(ctx, "p4")
	require.NoError(t, err)
	assert.Equal(t, "42", newCode)
	assert.NotEqual(t, roomID, newID)
}

func (s *UsecaseRoomScenarioSuite) TestConcurrentJoinsSeatExactlyOne(t provider.T) {
	t.Parallel()
	uc, _ := newUsecase()
	ctx := context.Background()
	_, code, err := uc.CreateRoom(ctx, "owner")
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	results := make([]error, n)
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = uc.JoinRoom(ctx, code, "challenger-"+strconv.Itoa(i))
		}(i)
	}
	close(start)
	wg.Wait()

	joined := 0
	for _, err := range results {
		switch {
		case err == nil:
			joined++
		default:
			assert.ErrorIs(t, err, usecase_room.ErrRoomFull)
		}
	}
	assert.Equal(t, 1, joined)

	snap, err := uc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Len(t, snap.Players, 2)
}

func (s *UsecaseRoomScenarioSuite) TestConcurrentCreatesGetDistinctCodes(t provider.T) {
	t.Parallel()
	// A tiny code space forces collisions.
	uc, _ := newUsecase(
		usecase_room.WithCodeGenerator(usecase_room.CodeGenerator(64)),
		usecase_room.WithCodeRetries(256),
	)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	codes := make(map[string]struct{}, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, code, err := uc.CreateRoom(ctx, "p")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			codes[code] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, codes, n)
}

func (s *UsecaseRoomScenarioSuite) TestCodeSpaceExhausted(t provider.T) {
	t.Parallel()
	uc, _ := newUsecase(fixedCode("1"), usecase_room.WithCodeRetries(3))
	ctx := context.Background()

	_, _, err := uc.CreateRoom(ctx, "p1")
	require.NoError(t, err)

	_, _, err = uc.CreateRoom(ctx, "p2")
	assert.ErrorIs(t, err, usecase_room.ErrCodeSpaceExhausted)
}

func (s *UsecaseRoomScenarioSuite) TestObserverSeesEveryState(t provider.T) {
	t.Parallel()
	uc, feed := newUsecase()
	ctx, cancel := context.WithCancel(context.Background())

	roomID, code, err := uc.CreateRoom(ctx, "p1")
	require.NoError(t, err)

	sub, err := uc.ObserveRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Subscribers(roomID))

	first := receive(t, sub)
	assert.Equal(t, model.StatusWaiting, first.Status)

	_, err = uc.JoinRoom(ctx, code, "p2")
	require.NoError(t, err)
	second := receive(t, sub)
	assert.Equal(t, model.StatusPlaying, second.Status)

	_, err = uc.Disconnect(ctx, roomID, "p2")
	require.NoError(t, err)
	third := receive(t, sub)
	assert.False(t, third.Ready)
	assert.Greater(t, third.Version, second.Version)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription was not released")
	}
	assert.Eventually(t, func() bool { return feed.Subscribers(roomID) == 0 }, time.Second, 10*time.Millisecond)
}

func (s *UsecaseRoomScenarioSuite) TestObserveUnknownRoom(t provider.T) {
	t.Parallel()
	uc, feed := newUsecase()
	roomID := uuid.New()

	_, err := uc.ObserveRoom(context.Background(), roomID)

	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound)
	assert.Zero(t, feed.Subscribers(roomID))
}

func (s *UsecaseRoomScenarioSuite) TestRejoinAfterDisconnect(t provider.T) {
	t.Parallel()
	uc, _ := newUsecase()
	ctx := context.Background()
	roomID, code, err := uc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	_, err = uc.JoinRoom(ctx, code, "p2")
	require.NoError(t, err)

	down, err := uc.Disconnect(ctx, roomID, "p2")
	require.NoError(t, err)
	assert.False(t, down.Ready)

	up, err := uc.JoinRoom(ctx, code, "p2")
	require.NoError(t, err)
	assert.True(t, up.Ready)
	assert.Equal(t, down.Version+1, up.Version)

	again, err := uc.JoinRoom(ctx, code, "p2")
	require.NoError(t, err)
	assert.Equal(t, up.Version, again.Version)
}

func (s *UsecaseRoomScenarioSuite) TestCleanupAbandonsStaleRooms(t provider.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	uc, _ := newUsecase(
		usecase_room.WithClock(clock),
		usecase_room.WithCleanup(1000, 10*time.Minute, 2*time.Hour, time.Hour),
	)
	ctx := context.Background()

	staleID, staleCode, err := uc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	advance(15 * time.Minute)
	freshID, _, err := uc.CreateRoom(ctx, "p2")
	require.NoError(t, err)

	abandoned, err := uc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, abandoned)

	stale, err := uc.GetRoomByID(ctx, staleID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAbandoned, stale.Status)
	_, err = uc.GetRoom(ctx, staleCode)
	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound)

	fresh, err := uc.GetRoomByID(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, fresh.Status)

	// Terminal rooms are purged once they outlive the terminal TTL.
	advance(2 * time.Hour)
	_, err = uc.Cleanup(ctx)
	require.NoError(t, err)
	_, err = uc.GetRoomByID(ctx, staleID)
	assert.ErrorIs(t, err, usecase_room.ErrRoomNotFound)
}

func (s *UsecaseRoomScenarioSuite) TestStatusNeverReverts(t provider.T) {
	t.Parallel()
	uc, _ := newUsecase()
	ctx := context.Background()
	roomID, code, err := uc.CreateRoom(ctx, "p1")
	require.NoError(t, err)
	_, err = uc.JoinRoom(ctx, code, "p2")
	require.NoError(t, err)

	for _, to := range []model.RoomStatus{model.StatusWaiting, model.StatusPlaying} {
		_, err := uc.FinishRoom(ctx, roomID, to)
		assert.True(t, errors.Is(err, usecase_room.ErrInvalidTransition), "status %s", to)
	}

	snap, err := uc.GetRoomByID(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlaying, snap.Status)
}

func receive(t provider.T, sub interface {
	C() <-chan model.Snapshot
}) model.Snapshot {
	select {
	case snap, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot received")
	}
	return model.Snapshot{}
}

func TestUsecaseRoomScenarioSuite(t *testing.T) {
	suite.RunSuite(t, new(UsecaseRoomScenarioSuite))
}
