package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/txcore/internal/config"
	"github.com/yungbote/txcore/internal/data/events"
	"github.com/yungbote/txcore/internal/platform/logger"
)

type Clients struct {
	Redis     *goredis.Client
	Publisher *events.RedisPublisher
}

func wireClients(ctx context.Context, cfg config.EventsConfig, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return Clients{}, nil
	}
	rdb, err := events.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis publisher: %w", err)
	}
	return Clients{
		Redis:     rdb,
		Publisher: events.NewRedisPublisher(rdb, cfg.Channel, log),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
		c.Redis = nil
	}
}
