package app

import (
	"context"
	"time"

	"github.com/yungbote/txcore/internal/data/events"
)

const relayBatch = 100

// relayLoop drains the outbox every interval until ctx ends. A full batch is
// followed immediately by another pass.
func (a *App) relayLoop(ctx context.Context, pub events.Publisher, every time.Duration) {
	log := a.Log.With("service", "OutboxRelay")
	log.Info("outbox relay started", "interval", every)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		n, err := events.RelayPending(ctx, a.DB.Write, pub, relayBatch)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("outbox relay failed", "error", err)
		case n > 0:
			log.Debug("outbox relayed", "count", n)
		}
		if n == relayBatch && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			log.Info("outbox relay stopped")
			return
		case <-t.C:
		}
	}
}
