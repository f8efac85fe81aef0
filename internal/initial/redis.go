package initial

import (
	"context"
	"fmt"
	"time"

	"SecAssist/internal/config"
	"SecAssist/pkg/redis"
	"SecAssist/pkg/zlog"

	goredis "github.com/redis/go-redis/v9"
)

// InitRedis connects and installs the pkg/redis client. It reports false when
// redis is not configured or unreachable; callers fall back to in-process
// locks and no response cache.
func InitRedis(conf *config.Config) bool {
	host := conf.RedisConfig.Host
	port := conf.RedisConfig.Port
	if host == "" {
		zlog.Info("redis not configured, skipping")
		return false
	}
	if port == 0 {
		port = 6379
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	zlog.Info(fmt.Sprintf("redis connecting: %s", addr))

	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     conf.RedisConfig.Password,
		DB:           conf.RedisConfig.DB,
		PoolSize:     conf.RedisConfig.PoolSize,
		MinIdleConns: conf.RedisConfig.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		zlog.Error(fmt.Sprintf("redis connect failed: %v", err))
		_ = client.Close()
		return false
	}

	redis.SetClient(client)
	zlog.Info("redis connected")
	return true
}
