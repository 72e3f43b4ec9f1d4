package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

var Redis *redis.Client

// ConnectRedis opens the shared client when redis is enabled
func ConnectRedis(ctx context.Context) error {
	if !AppConfig.Redis.Enabled {
		logrus.Info("Redis disabled, using in-process stores")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     AppConfig.Redis.Address,
		Password: AppConfig.Redis.Password,
		DB:       AppConfig.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	Redis = client
	logrus.WithField("address", AppConfig.Redis.Address).Info("✅ Connected to redis")
	return nil
}
