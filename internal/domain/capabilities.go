package domain

import "time"

// SoftDelete is embedded by entities that opt into soft-delete semantics.
type SoftDelete struct {
	Deleted   bool       `gorm:"column:is_deleted;not null;default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`
}

func (s *SoftDelete) IsDeleted() bool { return s.Deleted }

func (s *SoftDelete) MarkDeleted(at time.Time) {
	s.Deleted = true
	at = at.UTC()
	s.DeletedAt = &at
}

// Restore undoes a soft delete.
func (s *SoftDelete) Restore() {
	s.Deleted = false
	s.DeletedAt = nil
}

// AuditTrail is embedded by entities that want created/updated stamps.
// Stamps are written by the save pipeline, not by gorm's autotime.
type AuditTrail struct {
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false" json:"created_at"`
	CreatedBy string    `gorm:"column:created_by" json:"created_by"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
	UpdatedBy string    `gorm:"column:updated_by" json:"updated_by"`
}

func (a *AuditTrail) StampCreated(at time.Time, actor string) {
	a.CreatedAt = at.UTC()
	a.CreatedBy = actor
}

func (a *AuditTrail) StampUpdated(at time.Time, actor string) {
	a.UpdatedAt = at.UTC()
	a.UpdatedBy = actor
}

// EventLog is embedded by entities that raise domain events. It is never persisted.
type EventLog struct {
	events []Event
}

// Raise records an event for dispatch after the next successful save.
func (l *EventLog) Raise(ev Event) {
	if ev == nil {
		return
	}
	l.events = append(l.events, ev)
}

func (l *EventLog) PendingEvents() []Event {
	if len(l.events) == 0 {
		return nil
	}
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *EventLog) ClearEvents() { l.events = nil }
