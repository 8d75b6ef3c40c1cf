// Package domain defines the persistence-facing contracts shared by entities:
// identity, the optional capabilities the save pipeline reacts to, and the
// error taxonomy surfaced by the data layer.
package domain

import "time"

// Entity is the minimal contract every persisted record satisfies.
// A zero K means the identifier has not been assigned yet.
type Entity[K comparable] interface {
	GetID() K
}

// SoftDeletable entities are flagged as deleted instead of being removed.
type SoftDeletable interface {
	IsDeleted() bool
	MarkDeleted(at time.Time)
	Restore()
}

// Auditable entities carry created/updated stamps.
type Auditable interface {
	StampCreated(at time.Time, actor string)
	StampUpdated(at time.Time, actor string)
}

// Event is a domain event raised by an entity.
type Event interface {
	EventName() string
}

// EventSource entities accumulate events until they are dispatched.
type EventSource interface {
	PendingEvents() []Event
	ClearEvents()
}
