package ledger

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventBalanceAdjusted = "ledger.balance_adjusted"
	EventAccountClosed   = "ledger.account_closed"
)

type BalanceAdjusted struct {
	AccountID  uuid.UUID `json:"account_id"`
	Delta      int64     `json:"delta"`
	Balance    int64     `json:"balance"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (BalanceAdjusted) EventName() string { return EventBalanceAdjusted }

func (e BalanceAdjusted) OccurredOn() time.Time { return e.OccurredAt }

type AccountClosed struct {
	AccountID  uuid.UUID `json:"account_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (AccountClosed) EventName() string { return EventAccountClosed }

func (e AccountClosed) OccurredOn() time.Time { return e.OccurredAt }
