package dispatch

import (
	"sync"

	"calagent/internal/models"
)

// OutcomeLog is the append-only in-memory record of background dispatch
// results. Dispatch is fire-and-forget from the caller's perspective, so
// this log is the system's sole synchronous view of what happened.
type OutcomeLog struct {
	mu       sync.Mutex
	outcomes []models.Outcome
}

// NewOutcomeLog returns an empty log.
func NewOutcomeLog() *OutcomeLog {
	return &OutcomeLog{}
}

// Append adds outcomes to the log.
func (l *OutcomeLog) Append(outcomes ...models.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, outcomes...)
}

// Snapshot returns a copy of all recorded outcomes in append order.
func (l *OutcomeLog) Snapshot() []models.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Outcome, len(l.outcomes))
	copy(out, l.outcomes)
	return out
}
