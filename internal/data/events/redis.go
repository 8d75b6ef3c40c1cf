package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/ctxutil"
	"github.com/yungbote/txcore/internal/platform/dbctx"
	"github.com/yungbote/txcore/internal/platform/logger"
)

const DefaultChannel = "txcore.events"

// RedisPublisher publishes one JSON envelope per event on a pub/sub channel.
type RedisPublisher struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
	now     func() time.Time
}

// NewRedisClient dials addr and verifies it with a ping.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctxutil.Default(ctx), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisPublisher(rdb goredis.UniversalClient, channel string, log *logger.Logger) *RedisPublisher {
	if log == nil {
		log = logger.Nop()
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		log:     log.With("service", "RedisPublisher", "channel", channel),
		rdb:     rdb,
		channel: channel,
		now:     time.Now,
	}
}

func (p *RedisPublisher) Channel() string { return p.channel }

func (p *RedisPublisher) Dispatch(dbc dbctx.Context, evs []domain.Event) error {
	if len(evs) == 0 {
		return nil
	}
	envs := make([]Envelope, 0, len(evs))
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		env, err := NewEnvelope(ev, p.now())
		if err != nil {
			return err
		}
		envs = append(envs, env)
	}
	return p.Publish(ctxutil.Default(dbc.Ctx), envs...)
}

// Publish sends already-built envelopes in one pipeline.
func (p *RedisPublisher) Publish(ctx context.Context, envs ...Envelope) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis publisher not initialized")
	}
	if len(envs) == 0 {
		return nil
	}
	pipe := p.rdb.Pipeline()
	for _, env := range envs {
		raw, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal envelope %s: %w", env.Name, err)
		}
		pipe.Publish(ctx, p.channel, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.log.Warn("publish events failed", "count", len(envs), "error", err)
		return fmt.Errorf("redis publish: %w", err)
	}
	p.log.Debug("events published", "count", len(envs))
	return nil
}
