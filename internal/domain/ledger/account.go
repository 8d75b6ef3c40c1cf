package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/txcore/internal/domain"
)

// Account is a balance-holding ledger record. It soft-deletes, carries an
// audit trail and raises events when its balance moves.
type Account struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Owner    string    `gorm:"column:owner;not null;index" json:"owner"`
	Currency string    `gorm:"column:currency;not null;default:'USD'" json:"currency"`
	Balance  int64     `gorm:"column:balance;not null;default:0" json:"balance"`

	Postings []*Posting `gorm:"foreignKey:AccountID" json:"postings,omitempty"`

	domain.SoftDelete
	domain.AuditTrail
	domain.EventLog `gorm:"-" json:"-"`
}

func (Account) TableName() string { return "ledger_account" }

func (a *Account) GetID() uuid.UUID { return a.ID }

// NewAccount builds an account with a fresh identifier.
func NewAccount(owner, currency string) *Account {
	return &Account{ID: uuid.New(), Owner: owner, Currency: currency}
}

// Adjust moves the balance by delta and records a BalanceAdjusted event.
func (a *Account) Adjust(delta int64, reason string, at time.Time) {
	a.Balance += delta
	a.Raise(BalanceAdjusted{
		AccountID:  a.ID,
		Delta:      delta,
		Balance:    a.Balance,
		Reason:     reason,
		OccurredAt: at.UTC(),
	})
}

// Close raises AccountClosed. Callers delete the account through its repository.
func (a *Account) Close(at time.Time) {
	a.Raise(AccountClosed{AccountID: a.ID, OccurredAt: at.UTC()})
}
