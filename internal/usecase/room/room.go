package usecase_room

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/towerduels/internal/logger"
	"github.com/humanbelnik/towerduels/internal/model"
	"github.com/humanbelnik/towerduels/internal/service/roomfeed"
	"go.uber.org/zap"
)

var (
	ErrCodeConflict       = errors.New("code conflict")
	ErrCodeSpaceExhausted = errors.New("code space exhausted")
	ErrRoomNotFound       = errors.New("room not found")
	ErrTransientStore     = errors.New("store temporarily unavailable")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInternal           = errors.New("internal error")

	ErrRoomNotReady      = model.ErrRoomNotReady
	ErrRoomFull          = model.ErrRoomFull
	ErrNotMember         = model.ErrNotMember
	ErrInvalidTransition = model.ErrInvalidTransition
)

const maxPlayerIDLen = 64

//go:generate mockery --name=RoomRepository --output=./mocks/room/repository --filename=repository.go
type RoomRepository interface {
	// Create stores the room and its memberships atomically.
	// Returns ErrCodeConflict when the code is held by another active room.
	Create(ctx context.Context, room model.Room) error
	// ByCode resolves a non-terminal room.
	ByCode(ctx context.Context, code string) (model.Room, error)
	ByID(ctx context.Context, id uuid.UUID) (model.Room, error)
	// Update runs fn against the current state of the room while holding the
	// room exclusively. Changes are committed only if fn returns nil.
	Update(ctx context.Context, id uuid.UUID, fn func(r *model.Room) error) (model.Room, error)
	Stale(ctx context.Context, waitingBefore, playingBefore time.Time) ([]uuid.UUID, error)
	Purge(ctx context.Context, terminalBefore time.Time) (int, error)
}

type Feed interface {
	Subscribe(ctx context.Context, roomID uuid.UUID) *roomfeed.Subscription
	Publish(ctx context.Context, s model.Snapshot) error
}

type Publisher interface {
	Publish(ctx context.Context, s model.Snapshot) error
}

type Usecase struct {
	repo      RoomRepository
	feed      Feed
	publisher Publisher
	logger    *zap.Logger

	now       func() time.Time
	buildCode func() string

	codeRetries  int
	storeRetries int
	storeBackoff time.Duration

	// Used to make periodic stuff on every Nth creation
	cleanupPeriod int64
	createdCount  atomic.Int64
	waitingTTL    time.Duration
	playingTTL    time.Duration
	terminalTTL   time.Duration
}

type Option func(*Usecase)

func WithLogger(l *zap.Logger) Option {
	return func(u *Usecase) { u.logger = l }
}

// WithPublisher routes change notifications somewhere other than the local feed.
func WithPublisher(p Publisher) Option {
	return func(u *Usecase) { u.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(u *Usecase) { u.now = now }
}

func WithCodeGenerator(gen func() string) Option {
	return func(u *Usecase) { u.buildCode = gen }
}

func WithCodeRetries(n int) Option {
	return func(u *Usecase) {
		if n > 0 {
			u.codeRetries = n
		}
	}
}

func WithStoreRetry(retries int, backoff time.Duration) Option {
	return func(u *Usecase) {
		if retries > 0 {
			u.storeRetries = retries
		}
		if backoff >= 0 {
			u.storeBackoff = backoff
		}
	}
}

func WithCleanup(period int, waitingTTL, playingTTL, terminalTTL time.Duration) Option {
	return func(u *Usecase) {
		if period > 0 {
			u.cleanupPeriod = int64(period)
		}
		if waitingTTL > 0 {
			u.waitingTTL = waitingTTL
		}
		if playingTTL > 0 {
			u.playingTTL = playingTTL
		}
		if terminalTTL > 0 {
			u.terminalTTL = terminalTTL
		}
	}
}

func New(repo RoomRepository, feed Feed, opts ...Option) *Usecase {
	u := &Usecase{
		repo:          repo,
		feed:          feed,
		publisher:     feed,
		logger:        logger.L().Named("room"),
		now:           time.Now,
		buildCode:     CodeGenerator(99999),
		codeRetries:   8,
		storeRetries:  3,
		storeBackoff:  50 * time.Millisecond,
		cleanupPeriod: 20,
		waitingTTL:    10 * time.Minute,
		playingTTL:    2 * time.Hour,
		terminalTTL:   time.Hour,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// CodeGenerator returns decimal codes in [1, upper] without leading zeros.
func CodeGenerator(upper int) func() string {
	if upper <= 0 {
		upper = 99999
	}
	return func() string {
		return strconv.Itoa(rand.IntN(upper) + 1)
	}
}

// CreateRoom allocates a fresh code and seats playerID at slot 1.
// Assuming that codes can conflict, the insert is retried with a new code
// until the retry budget runs out.
func (u *Usecase) CreateRoom(ctx context.Context, playerID string) (uuid.UUID, string, error) {
	if err := validatePlayerID(playerID); err != nil {
		return uuid.Nil, "", err
	}

	// Cleanup orphan rooms
	if u.createdCount.Add(1)%u.cleanupPeriod == 0 {
		if _, err := u.Cleanup(ctx); err != nil {
			u.logger.Warn("room cleanup failed", zap.Error(err))
		}
	}

	for attempt := 1; attempt <= u.codeRetries; attempt++ {
		room := model.NewRoom(u.buildCode(), playerID, u.now())

		err := u.withRetry(ctx, "create", func() error {
			return u.repo.Create(ctx, room)
		})
		switch {
		case err == nil:
			u.logger.Info("room created",
				zap.String("room_id", room.ID.String()),
				zap.String("code", room.Code),
				zap.String("player_id", playerID),
				zap.Int("attempt", attempt))
			u.publish(ctx, room.Snapshot())
			return room.ID, room.Code, nil
		case errors.Is(err, ErrCodeConflict):
			u.logger.Debug("room code conflict", zap.String("code", room.Code), zap.Int("attempt", attempt))
		case errors.Is(err, ErrTransientStore):
			return uuid.Nil, "", err
		default:
			return uuid.Nil, "", errors.Join(ErrInternal, err)
		}
	}

	u.logger.Warn("room code space exhausted", zap.Int("attempts", u.codeRetries))
	return uuid.Nil, "", ErrCodeSpaceExhausted
}

// JoinRoom claims the free slot of the room behind code for playerID and
// starts the match. Joining a room the player already belongs to returns the
// current snapshot.
func (u *Usecase) JoinRoom(ctx context.Context, code string, playerID string) (model.Snapshot, error) {
	if err := validatePlayerID(playerID); err != nil {
		return model.Snapshot{}, err
	}

	room, err := u.lookupCode(ctx, code)
	if err != nil {
		return model.Snapshot{}, err
	}

	snapshot, err := u.mutate(ctx, "join", room.ID, func(r *model.Room) error {
		return r.Join(playerID, u.now())
	})
	if err != nil {
		u.logger.Info("join rejected",
			zap.String("code", room.Code),
			zap.String("player_id", playerID),
			zap.Error(err))
		return model.Snapshot{}, err
	}

	u.logger.Info("player joined",
		zap.String("room_id", snapshot.ID.String()),
		zap.String("code", snapshot.Code),
		zap.String("player_id", playerID),
		zap.String("status", string(snapshot.Status)))
	return snapshot, nil
}

func (u *Usecase) GetRoom(ctx context.Context, code string) (model.Snapshot, error) {
	room, err := u.lookupCode(ctx, code)
	if err != nil {
		return model.Snapshot{}, err
	}
	return room.Snapshot(), nil
}

func (u *Usecase) GetRoomByID(ctx context.Context, roomID uuid.UUID) (model.Snapshot, error) {
	room, err := u.lookupID(ctx, roomID)
	if err != nil {
		return model.Snapshot{}, err
	}
	return room.Snapshot(), nil
}

// ObserveRoom subscribes to the room before reading it, so the first value on
// the subscription is at least as new as any commit that raced the call.
// The subscription ends when ctx is done, the caller closes it, or right
// after the terminal snapshot of the room.
func (u *Usecase) ObserveRoom(ctx context.Context, roomID uuid.UUID) (*roomfeed.Subscription, error) {
	sub := u.feed.Subscribe(ctx, roomID)

	room, err := u.lookupID(ctx, roomID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	sub.Offer(room.Snapshot())

	return sub, nil
}

func (u *Usecase) Disconnect(ctx context.Context, roomID uuid.UUID, playerID string) (model.Snapshot, error) {
	return u.setConnected(ctx, roomID, playerID, false)
}

func (u *Usecase) Reconnect(ctx context.Context, roomID uuid.UUID, playerID string) (model.Snapshot, error) {
	return u.setConnected(ctx, roomID, playerID, true)
}

func (u *Usecase) setConnected(ctx context.Context, roomID uuid.UUID, playerID string, connected bool) (model.Snapshot, error) {
	if err := validatePlayerID(playerID); err != nil {
		return model.Snapshot{}, err
	}
	return u.mutate(ctx, "set_connected", roomID, func(r *model.Room) error {
		return r.SetConnected(playerID, connected, u.now())
	})
}

// FinishRoom moves the room to a terminal status and frees its code.
func (u *Usecase) FinishRoom(ctx context.Context, roomID uuid.UUID, status model.RoomStatus) (model.Snapshot, error) {
	if !status.Terminal() {
		return model.Snapshot{}, ErrInvalidTransition
	}
	snapshot, err := u.mutate(ctx, "finish", roomID, func(r *model.Room) error {
		return r.Transition(status, u.now())
	})
	if err != nil {
		return model.Snapshot{}, err
	}
	u.logger.Info("room closed",
		zap.String("room_id", roomID.String()),
		zap.String("status", string(status)))
	return snapshot, nil
}

// Cleanup abandons rooms stuck in waiting or playing and purges old terminal rooms.
func (u *Usecase) Cleanup(ctx context.Context) (int, error) {
	now := u.now()

	var ids []uuid.UUID
	err := u.withRetry(ctx, "stale", func() error {
		var err error
		ids, err = u.repo.Stale(ctx, now.Add(-u.waitingTTL), now.Add(-u.playingTTL))
		return err
	})
	if err != nil {
		return 0, u.storeError(err)
	}

	abandoned := 0
	for _, id := range ids {
		_, err := u.mutate(ctx, "abandon", id, func(r *model.Room) error {
			return r.Transition(model.StatusAbandoned, u.now())
		})
		switch {
		case err == nil:
			abandoned++
		case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrInvalidTransition):
			// closed concurrently
		default:
			return abandoned, err
		}
	}

	var purged int
	err = u.withRetry(ctx, "purge", func() error {
		var err error
		purged, err = u.repo.Purge(ctx, now.Add(-u.terminalTTL))
		return err
	})
	if err != nil {
		return abandoned, u.storeError(err)
	}

	if abandoned > 0 || purged > 0 {
		u.logger.Info("rooms cleaned up", zap.Int("abandoned", abandoned), zap.Int("purged", purged))
	}
	return abandoned, nil
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (u *Usecase) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := u.Cleanup(ctx); err != nil && ctx.Err() == nil {
				u.logger.Warn("periodic room cleanup failed", zap.Error(err))
			}
		}
	}
}

func (u *Usecase) lookupCode(ctx context.Context, code string) (model.Room, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.Room{}, ErrInvalidArgument
	}

	var room model.Room
	err := u.withRetry(ctx, "by_code", func() error {
		var err error
		room, err = u.repo.ByCode(ctx, code)
		return err
	})
	if err != nil {
		return model.Room{}, u.storeError(err)
	}
	return room, nil
}

func (u *Usecase) lookupID(ctx context.Context, roomID uuid.UUID) (model.Room, error) {
	var room model.Room
	err := u.withRetry(ctx, "by_id", func() error {
		var err error
		room, err = u.repo.ByID(ctx, roomID)
		return err
	})
	if err != nil {
		return model.Room{}, u.storeError(err)
	}
	return room, nil
}

// mutate applies fn inside the store's per-room critical section and
// publishes the result when fn changed anything.
func (u *Usecase) mutate(ctx context.Context, op string, roomID uuid.UUID, fn func(r *model.Room) error) (model.Snapshot, error) {
	var before int64
	var room model.Room
	err := u.withRetry(ctx, op, func() error {
		var err error
		room, err = u.repo.Update(ctx, roomID, func(r *model.Room) error {
			before = r.Version
			return fn(r)
		})
		return err
	})
	if err != nil {
		return model.Snapshot{}, u.storeError(err)
	}

	snapshot := room.Snapshot()
	if room.Version != before {
		u.publish(ctx, snapshot)
	}
	return snapshot, nil
}

func (u *Usecase) publish(ctx context.Context, s model.Snapshot) {
	if err := u.publisher.Publish(ctx, s); err != nil {
		u.logger.Warn("failed to publish room snapshot",
			zap.String("room_id", s.ID.String()),
			zap.Int64("version", s.Version),
			zap.Error(err))
	}
}

func (u *Usecase) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := u.storeBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, ErrTransientStore) || attempt >= u.storeRetries {
			return err
		}

		u.logger.Warn("transient store error, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ErrTransientStore, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (u *Usecase) storeError(err error) error {
	switch {
	case errors.Is(err, model.ErrRoomClosed):
		return ErrRoomNotFound
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrRoomNotReady),
		errors.Is(err, ErrRoomFull),
		errors.Is(err, ErrNotMember),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrTransientStore):
		return err
	}
	return errors.Join(ErrInternal, err)
}

func validatePlayerID(playerID string) error {
	if strings.TrimSpace(playerID) == "" || len(playerID) > maxPlayerIDLen {
		return ErrInvalidArgument
	}
	return nil
}
