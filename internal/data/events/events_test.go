package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/txcore/internal/data/testutil"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/domain/ledger"
	"github.com/yungbote/txcore/internal/platform/dbctx"
)

func adjusted(delta int64) domain.Event {
	return ledger.BalanceAdjusted{
		AccountID:  uuid.New(),
		Delta:      delta,
		Balance:    delta,
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBusDispatchOrder(t *testing.T) {
	bus := NewBus()
	var seen []string
	bus.Subscribe(ledger.EventBalanceAdjusted, func(_ dbctx.Context, ev domain.Event) error {
		seen = append(seen, "first:"+ev.EventName())
		return nil
	})
	bus.SubscribeAll(func(_ dbctx.Context, ev domain.Event) error {
		seen = append(seen, "all:"+ev.EventName())
		return nil
	})
	bus.Subscribe(ledger.EventBalanceAdjusted, func(_ dbctx.Context, ev domain.Event) error {
		seen = append(seen, "second:"+ev.EventName())
		return nil
	})

	require.NoError(t, bus.Dispatch(dbctx.Context{Ctx: context.Background()}, []domain.Event{adjusted(5)}))
	assert.Equal(t, []string{
		"first:" + ledger.EventBalanceAdjusted,
		"second:" + ledger.EventBalanceAdjusted,
		"all:" + ledger.EventBalanceAdjusted,
	}, seen)
}

func TestFanoutStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls []string
	f := NewFanout(
		DispatcherFunc(func(dbctx.Context, []domain.Event) error { calls = append(calls, "a"); return boom }),
		nil,
		DispatcherFunc(func(dbctx.Context, []domain.Event) error { calls = append(calls, "b"); return nil }),
	)
	err := f.Dispatch(dbctx.Context{}, []domain.Event{adjusted(1)})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, calls)
}

func TestEnvelopeUsesEventTime(t *testing.T) {
	env, err := NewEnvelope(adjusted(3), time.Now())
	require.NoError(t, err)
	assert.Equal(t, ledger.EventBalanceAdjusted, env.Name)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), env.OccurredAt)
	assert.NotEqual(t, uuid.Nil, env.ID)

	var payload ledger.BalanceAdjusted
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, int64(3), payload.Delta)
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, "ledger")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(rdb, "ledger", testutil.Logger(t))
	require.NoError(t, pub.Dispatch(dbctx.Context{Ctx: ctx}, []domain.Event{adjusted(7), adjusted(8)}))

	var got []Envelope
	ch := sub.Channel()
	for len(got) < 2 {
		select {
		case m := <-ch:
			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &env))
			got = append(got, env)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for published events, got %d", len(got))
		}
	}
	assert.Equal(t, ledger.EventBalanceAdjusted, got[0].Name)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

type capturePublisher struct {
	envs []Envelope
	err  error
}

func (c *capturePublisher) Publish(_ context.Context, envs ...Envelope) error {
	if c.err != nil {
		return c.err
	}
	c.envs = append(c.envs, envs...)
	return nil
}

func TestOutboxWriteAndRelay(t *testing.T) {
	h := testutil.SQLite(t, &OutboxMessage{})
	ctx := context.Background()
	w := NewOutboxWriter(testutil.Logger(t))

	tx := h.Write.WithContext(ctx).Begin()
	require.NoError(t, tx.Error)
	require.NoError(t, w.Dispatch(dbctx.Context{Ctx: ctx, Tx: tx}, []domain.Event{adjusted(1), adjusted(2)}))
	require.NoError(t, tx.Rollback().Error)

	var count int64
	require.NoError(t, h.Read.Model(&OutboxMessage{}).Count(&count).Error)
	assert.Zero(t, count, "rolled back outbox rows must not survive")

	require.NoError(t, w.Dispatch(dbctx.Context{Ctx: ctx, Tx: h.Write}, []domain.Event{adjusted(1), adjusted(2)}))

	failing := &capturePublisher{err: errors.New("broker down")}
	_, err := RelayPending(ctx, h.Write, failing, 10)
	require.Error(t, err)

	pub := &capturePublisher{}
	n, err := RelayPending(ctx, h.Write, pub, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.envs, 2)

	n, err = RelayPending(ctx, h.Write, pub, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxWriterNeedsHandle(t *testing.T) {
	err := NewOutboxWriter(nil).Dispatch(dbctx.Context{}, []domain.Event{adjusted(1)})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeInternal))
}
