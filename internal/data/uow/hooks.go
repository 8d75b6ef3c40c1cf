package uow

import "time"

// Hooks captures unit-of-work observability signals.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncContention(name string)
	IncRetry(name string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncContention(string)                           {}
func (noopHooks) IncRetry(string)                                {}

// NoopHooks discards every signal.
func NoopHooks() Hooks { return noopHooks{} }

const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusContention = "contention"
	StatusConflict   = "conflict"
)
