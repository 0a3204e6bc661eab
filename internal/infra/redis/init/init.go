package infra_redis_init

import (
	"fmt"

	"github.com/go-redis/redis"
	"github.com/humanbelnik/towerduels/internal/config"
	"github.com/humanbelnik/towerduels/internal/logger"
	"go.uber.org/zap"
)

func MustEstablishConn(cfg config.RedisCache) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	if err := client.Ping().Err(); err != nil {
		logger.L().Fatal("redis ping failed", zap.String("host", cfg.Host), zap.Error(err))
	}

	return client
}
