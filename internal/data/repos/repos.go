package repos

import (
	"github.com/google/uuid"

	"github.com/yungbote/txcore/internal/domain/ledger"
)

type AccountRepo = Repository[*ledger.Account, uuid.UUID]
type PostingRepo = Repository[*ledger.Posting, int64]
type AuditNoteRepo = Repository[*ledger.AuditNote, string]

// Ledger bundles the repositories of the ledger domain.
type Ledger struct {
	Accounts   *AccountRepo
	Postings   *PostingRepo
	AuditNotes *AuditNoteRepo
}

func NewLedger() (*Ledger, error) {
	accounts, err := NewRepository[*ledger.Account, uuid.UUID]()
	if err != nil {
		return nil, err
	}
	postings, err := NewRepository[*ledger.Posting, int64]()
	if err != nil {
		return nil, err
	}
	notes, err := NewRepository[*ledger.AuditNote, string]()
	if err != nil {
		return nil, err
	}
	return &Ledger{Accounts: accounts, Postings: postings, AuditNotes: notes}, nil
}
