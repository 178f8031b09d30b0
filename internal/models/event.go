package models

import "time"

// Event represents a calendar event in its provider-independent form.
// Start and end are always absolute timestamps: adapters normalize
// provider-specific representations (all-day events, date-only values)
// before an Event leaves their boundary.
type Event struct {
	ID          string    // Native identifier in the owning provider's format
	Title       string    // Summary or title of the event
	Description string    // Detailed description of the event
	Location    string    // Location of the event
	StartTime   time.Time // Absolute start time
	EndTime     time.Time // Absolute end time, never before StartTime
	AllDay      bool      // True if the provider stored this as an all-day event
	Attendees   []string  // Attendee email addresses, in provider order
	Link        string    // Provider link to the event, if any
}

// EventDraft describes a new event to be created. Empty fields fall back
// to provider defaults at the adapter boundary.
type EventDraft struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// EventPatch carries a partial update. Nil pointers leave the
// corresponding field untouched; a nil Attendees slice is likewise
// "unchanged" (an explicit empty slice clears the attendee list).
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
	Attendees   []string
}

// IsZero reports whether the patch changes nothing.
func (p EventPatch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil &&
		p.Start == nil && p.End == nil && p.Attendees == nil
}
