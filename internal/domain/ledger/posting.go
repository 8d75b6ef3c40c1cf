package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Posting is an immutable line against an account. It has no soft-delete
// capability, so removing one deletes the row.
type Posting struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	Amount    int64     `gorm:"column:amount;not null" json:"amount"`
	Memo      string    `gorm:"column:memo" json:"memo"`
	PostedAt  time.Time `gorm:"column:posted_at;not null" json:"posted_at"`
}

func (Posting) TableName() string { return "ledger_posting" }

func (p *Posting) GetID() int64 { return p.ID }
