package provider

import (
	"time"

	"calagent/internal/models"
)

// NormalizeDraft fills the defaults every adapter applies before a create
// call: a missing title becomes "New Event", a missing start becomes now,
// and a missing or inverted end becomes start plus one hour. Nulls never
// cross the wire.
func NormalizeDraft(draft models.EventDraft, now time.Time) models.EventDraft {
	if draft.Title == "" {
		draft.Title = "New Event"
	}
	if draft.Start.IsZero() {
		draft.Start = now.UTC()
	}
	if draft.End.IsZero() || draft.End.Before(draft.Start) {
		draft.End = draft.Start.Add(time.Hour)
	}
	return draft
}
