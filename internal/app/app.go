package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/humanbelnik/towerduels/internal/config"
	http_init "github.com/humanbelnik/towerduels/internal/delivery/http/init"
	http_room "github.com/humanbelnik/towerduels/internal/delivery/http/room"
	ws_room "github.com/humanbelnik/towerduels/internal/delivery/ws/room"
	infra_memory_room "github.com/humanbelnik/towerduels/internal/infra/memory/room"
	infra_pg_init "github.com/humanbelnik/towerduels/internal/infra/postgres/init"
	infra_postgres_room "github.com/humanbelnik/towerduels/internal/infra/postgres/room"
	infra_redis_init "github.com/humanbelnik/towerduels/internal/infra/redis/init"
	infra_redis_roomevents "github.com/humanbelnik/towerduels/internal/infra/redis/roomevents"
	"github.com/humanbelnik/towerduels/internal/logger"
	"github.com/humanbelnik/towerduels/internal/service/roomfeed"
	usecase_room "github.com/humanbelnik/towerduels/internal/usecase/room"
	"go.uber.org/zap"
)

func Go(cfg *config.Config) {
	l, err := logger.Init(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, cfg); err != nil {
		l.Fatal("towerduels stopped", zap.Error(err))
	}
	l.Info("towerduels stopped")
}

// Run wires the coordinator and serves HTTP until ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}

	feed := roomfeed.New()
	opts := []usecase_room.Option{
		usecase_room.WithCodeGenerator(usecase_room.CodeGenerator(cfg.Coordinator.CodeMax)),
		usecase_room.WithCodeRetries(cfg.Coordinator.CodeRetries),
		usecase_room.WithStoreRetry(cfg.Store.Retries, cfg.Store.Backoff),
		usecase_room.WithCleanup(
			cfg.Coordinator.CleanupPeriod,
			cfg.Coordinator.WaitingTTL,
			cfg.Coordinator.PlayingTTL,
			cfg.Coordinator.TerminalTTL,
		),
	}

	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	if cfg.Redis.Enabled {
		redisConn := infra_redis_init.MustEstablishConn(cfg.Redis)
		defer redisConn.Close()

		relay := infra_redis_roomevents.New(redisConn, cfg.Redis.Channel, feed)
		if err := startRelay(ctx, stop, relay); err != nil {
			return err
		}
		opts = append(opts, usecase_room.WithPublisher(relay))
	}

	roomUC := usecase_room.New(repo, feed, opts...)
	go roomUC.RunCleanup(ctx, cfg.Coordinator.CleanupInterval)

	controllerPool := http_init.NewControllerPool()
	controllerPool.Add(http_room.New(roomUC))
	controllerPool.Add(ws_room.New(roomUC))
	controllerPool.Register()

	if err := controllerPool.RunAll(ctx, cfg.HTTP.Host, cfg.HTTP.Port); err != nil {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

type relayRunner interface {
	Run(ctx context.Context, ready chan<- struct{}) error
}

// startRelay returns once the relay is subscribed. A relay that stops
// afterwards cancels ctx with its error, which takes the service down
// instead of leaving other instances' changes unseen.
func startRelay(ctx context.Context, stop context.CancelCauseFunc, relay relayRunner) error {
	ready := make(chan struct{})
	failed := make(chan error, 1)
	go func() {
		err := relay.Run(ctx, ready)
		if err == nil {
			return
		}
		err = fmt.Errorf("room event relay: %w", err)
		logger.L().Error("room event relay stopped", zap.Error(err))
		failed <- err
		stop(err)
	}()

	select {
	case <-ready:
		return nil
	case err := <-failed:
		return err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func newRepository(ctx context.Context, cfg *config.Config) (usecase_room.RoomRepository, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		logger.L().Info("using in-memory room store")
		return infra_memory_room.New(), nil
	case config.StorePostgres:
		pgConn := infra_pg_init.MustEstablishConn(cfg.Postgres)
		repo := infra_postgres_room.New(pgConn)
		if cfg.Postgres.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		logger.L().Info("using postgres room store", zap.String("host", cfg.Postgres.Host))
		return repo, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
