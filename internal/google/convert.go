package google

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"calagent/internal/models"
)

// eventFromAPI converts a wire event to the internal model, normalizing
// Google's two date representations. A date-only value (all-day event)
// becomes midnight UTC of that day; a missing start or end defaults to
// now / now + 1h so nulls never leave the adapter.
func eventFromAPI(item *calendar.Event, now time.Time) models.Event {
	event := models.Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Link:        item.HtmlLink,
	}

	var allDay bool
	event.StartTime, allDay = parseEventTime(item.Start, now)
	event.AllDay = allDay

	fallbackEnd := event.StartTime.Add(time.Hour)
	if allDay {
		// An all-day event spans at least the named day.
		fallbackEnd = event.StartTime.AddDate(0, 0, 1)
	}
	end, _ := parseEventTime(item.End, fallbackEnd)
	event.EndTime = end
	if event.EndTime.Before(event.StartTime) {
		event.EndTime = fallbackEnd
	}

	for _, attendee := range item.Attendees {
		event.Attendees = append(event.Attendees, attendee.Email)
	}
	return event
}

// parseEventTime resolves a Google EventDateTime, which carries either a
// timed DateTime or a date-only Date. The second return reports the
// all-day case. Missing or unparseable values yield fallback.
func parseEventTime(edt *calendar.EventDateTime, fallback time.Time) (time.Time, bool) {
	if edt == nil {
		return fallback, false
	}
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return t.UTC(), false
		}
		return fallback, false
	}
	if edt.Date != "" {
		if t, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return t.UTC(), true
		}
	}
	return fallback, false
}

func eventToAPI(draft models.EventDraft) *calendar.Event {
	event := &calendar.Event{
		Summary:     draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		Start: &calendar.EventDateTime{
			DateTime: draft.Start.Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: draft.End.Format(time.RFC3339),
			TimeZone: "UTC",
		},
	}
	for _, email := range draft.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}
	return event
}

func applyPatch(event *calendar.Event, patch models.EventPatch) {
	if patch.Title != nil {
		event.Summary = *patch.Title
	}
	if patch.Description != nil {
		event.Description = *patch.Description
	}
	if patch.Location != nil {
		event.Location = *patch.Location
	}
	if patch.Start != nil {
		event.Start = &calendar.EventDateTime{DateTime: patch.Start.Format(time.RFC3339), TimeZone: "UTC"}
	}
	if patch.End != nil {
		event.End = &calendar.EventDateTime{DateTime: patch.End.Format(time.RFC3339), TimeZone: "UTC"}
	}
	if patch.Attendees != nil {
		event.Attendees = nil
		for _, email := range patch.Attendees {
			event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
		}
	}
}
