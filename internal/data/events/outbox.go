package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/txcore/internal/data/dberr"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/dbctx"
	"github.com/yungbote/txcore/internal/platform/logger"
)

// OutboxMessage is an event persisted next to the data that raised it.
type OutboxMessage struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventName   string         `gorm:"column:event_name;not null;index" json:"event_name"`
	Payload     datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	OccurredAt  time.Time      `gorm:"column:occurred_at;not null" json:"occurred_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
	PublishedAt *time.Time     `gorm:"column:published_at;index" json:"published_at,omitempty"`
}

func (OutboxMessage) TableName() string { return "outbox_message" }

func (m OutboxMessage) Envelope() Envelope {
	return Envelope{ID: m.ID, Name: m.EventName, OccurredAt: m.OccurredAt, Payload: []byte(m.Payload)}
}

// OutboxWriter stores events through the caller's write handle so they commit
// or roll back together with the data.
type OutboxWriter struct {
	log *logger.Logger
	now func() time.Time
}

func NewOutboxWriter(log *logger.Logger) *OutboxWriter {
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxWriter{log: log.With("service", "OutboxWriter"), now: time.Now}
}

func (w *OutboxWriter) Dispatch(dbc dbctx.Context, evs []domain.Event) error {
	if len(evs) == 0 {
		return nil
	}
	tx := dbc.DB()
	if tx == nil {
		return domain.NewError(domain.CodeInternal, "outbox.write", "no write handle", nil)
	}
	now := w.now().UTC()
	rows := make([]OutboxMessage, 0, len(evs))
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		env, err := NewEnvelope(ev, now)
		if err != nil {
			return err
		}
		rows = append(rows, OutboxMessage{
			ID:         env.ID,
			EventName:  env.Name,
			Payload:    datatypes.JSON(env.Payload),
			OccurredAt: env.OccurredAt,
			CreatedAt:  now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Create(&rows).Error; err != nil {
		return dberr.Map("outbox.write", err)
	}
	w.log.Debug("outbox rows written", "count", len(rows))
	return nil
}

// Publisher sends envelopes to a broker.
type Publisher interface {
	Publish(ctx context.Context, envs ...Envelope) error
}

// RelayPending publishes up to limit unpublished outbox rows and marks them
// published, all in one transaction on db. Rows claimed by a concurrent relay
// are skipped on stores that support SKIP LOCKED.
func RelayPending(ctx context.Context, db *gorm.DB, pub Publisher, limit int) (int, error) {
	if db == nil || pub == nil {
		return 0, domain.NewError(domain.CodeInternal, "outbox.relay", "db and publisher are required", nil)
	}
	if limit <= 0 {
		limit = 100
	}
	relayed := 0
	err := db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		q := txx.Where("published_at IS NULL").Order("created_at ASC").Limit(limit)
		if db.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
		}
		var rows []OutboxMessage
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		envs := make([]Envelope, 0, len(rows))
		ids := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			envs = append(envs, r.Envelope())
			ids = append(ids, r.ID)
		}
		if err := pub.Publish(ctx, envs...); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := txx.Model(&OutboxMessage{}).Where("id IN ?", ids).Update("published_at", now).Error; err != nil {
			return err
		}
		relayed = len(rows)
		return nil
	})
	if err != nil {
		return 0, dberr.Map("outbox.relay", fmt.Errorf("relay: %w", err))
	}
	return relayed, nil
}
