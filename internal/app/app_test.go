package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/humanbelnik/towerduels/internal/config"
	infra_memory_room "github.com/humanbelnik/towerduels/internal/infra/memory/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRepository(t *testing.T) {
	cfg := config.FromEnv()

	repo, err := newRepository(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &infra_memory_room.Driver{}, repo)

	cfg.Store.Driver = "etcd"
	_, err = newRepository(context.Background(), cfg)
	assert.ErrorContains(t, err, "etcd")
}

type fakeRelay struct {
	subscribeErr error
	lost         chan error
}

func (f *fakeRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	close(ready)
	select {
	case <-ctx.Done():
		return nil
	case err := <-f.lost:
		return err
	}
}

func TestStartRelayFailsWhenSubscriptionFails(t *testing.T) {
	ctx, stop := context.WithCancelCause(context.Background())
	defer stop(nil)
	boom := errors.New("connection refused")

	err := startRelay(ctx, stop, &fakeRelay{subscribeErr: boom})

	assert.ErrorIs(t, err, boom)
}

func TestStartRelayStopsServiceWhenRelayDies(t *testing.T) {
	ctx, stop := context.WithCancelCause(context.Background())
	defer stop(nil)
	relay := &fakeRelay{lost: make(chan error, 1)}

	require.NoError(t, startRelay(ctx, stop, relay))
	assert.NoError(t, ctx.Err())

	lost := errors.New("subscription lost")
	relay.lost <- lost

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("service context was not cancelled")
	}
	assert.ErrorIs(t, context.Cause(ctx), lost)
}
