package infra_redis_roomevents

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/humanbelnik/towerduels/internal/logger"
	"github.com/humanbelnik/towerduels/internal/model"
	"go.uber.org/zap"
)

var ErrSubscriptionLost = errors.New("room events subscription lost")

type LocalPublisher interface {
	Publish(ctx context.Context, s model.Snapshot) error
}

type message struct {
	Origin   uuid.UUID      `json:"origin"`
	Snapshot model.Snapshot `json:"snapshot"`
}

// Relay carries room snapshots between coordinator instances over a redis
// channel. Snapshots published here reach local subscribers directly;
// the channel only brings in snapshots from other instances.
type Relay struct {
	client  *redis.Client
	channel string
	local   LocalPublisher
	origin  uuid.UUID
	logger  *zap.Logger
}

func New(
	client *redis.Client,
	channel string,
	local LocalPublisher,
) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		local:   local,
		origin:  uuid.New(),
		logger:  logger.L().Named("roomevents"),
	}
}

func (r *Relay) Publish(ctx context.Context, s model.Snapshot) error {
	localErr := r.local.Publish(ctx, s)

	raw, err := json.Marshal(message{Origin: r.origin, Snapshot: s})
	if err != nil {
		return errors.Join(localErr, err)
	}
	if err := r.client.WithContext(ctx).Publish(r.channel, raw).Err(); err != nil {
		r.logger.Warn("redis publish failed, other instances will miss the snapshot",
			zap.String("room_id", s.ID.String()),
			zap.Error(err))
		return errors.Join(localErr, err)
	}
	return localErr
}

// Run subscribes to the channel and forwards snapshots of other instances
// until ctx is done. ready, if not nil, is closed once the subscription is
// confirmed. Any other exit is reported as an error.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.Subscribe(r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSubscriptionLost
			}
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Warn("dropping malformed room event", zap.Error(err))
				continue
			}
			if m.Origin == r.origin {
				continue
			}
			if err := r.local.Publish(ctx, m.Snapshot); err != nil {
				r.logger.Warn("local publish failed", zap.String("room_id", m.Snapshot.ID.String()), zap.Error(err))
			}
		}
	}
}
