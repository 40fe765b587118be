package database

import (
	"context"
	"drone-helpdesk-go/internal/config"
	"drone-helpdesk-go/pkg/log"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RDB 保存对话历史与摄取任务的失败计数。
var RDB *redis.Client

// InitRedis 创建客户端并在超时内确认连通。
func InitRedis(ctx context.Context, cfg config.RedisConfig) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	RDB = client
	log.Infof("Redis 连接成功: %s (db=%d)", cfg.Addr, cfg.DB)
	return nil
}
