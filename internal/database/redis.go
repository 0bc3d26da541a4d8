package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/sirupsen/logrus"
)

// InitRedis returns nil when Redis is unreachable; callers run without it.
func InitRedis(ctx context.Context, cfg config.RedisConfig, log *logrus.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis connection failed, continuing without redis")
		rdb.Close()
		return nil
	}

	log.Info("redis connection established")
	return rdb
}
