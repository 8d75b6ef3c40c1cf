package ledger

import "time"

// AuditNote is a free-form annotation keyed by a caller-chosen reference.
// It carries no capabilities: no stamps, no events, physical delete.
type AuditNote struct {
	Ref       string    `gorm:"column:ref;primaryKey;size:128" json:"ref"`
	Subject   string    `gorm:"column:subject;not null;index" json:"subject"`
	Body      string    `gorm:"column:body" json:"body"`
	WrittenAt time.Time `gorm:"column:written_at;not null" json:"written_at"`
}

func (AuditNote) TableName() string { return "ledger_audit_note" }

func (n *AuditNote) GetID() string { return n.Ref }
