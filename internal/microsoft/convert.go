package microsoft

import (
	"time"

	"calagent/internal/models"
)

// graphDateTimeLayout is the fractional-seconds layout Graph emits for
// event start and end values. It carries no offset; the zone lives in
// the sibling timeZone field.
const graphDateTimeLayout = "2006-01-02T15:04:05.9999999"

type graphCalendar struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	HexColor string `json:"hexColor,omitempty"`
	Owner    struct {
		Address string `json:"address"`
	} `json:"owner"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID      string `json:"id,omitempty"`
	Subject string `json:"subject"`
	Body    *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body,omitempty"`
	BodyPreview string         `json:"bodyPreview,omitempty"`
	Start       *graphDateTime `json:"start,omitempty"`
	End         *graphDateTime `json:"end,omitempty"`
	IsAllDay    bool           `json:"isAllDay,omitempty"`
	Location    *struct {
		DisplayName string `json:"displayName"`
	} `json:"location,omitempty"`
	Attendees []graphAttendee `json:"attendees,omitempty"`
	WebLink   string          `json:"webLink,omitempty"`
}

type graphAttendee struct {
	Type         string `json:"type,omitempty"`
	EmailAddress struct {
		Address string `json:"address"`
		Name    string `json:"name,omitempty"`
	} `json:"emailAddress"`
}

func eventFromGraph(item *graphEvent, now time.Time) models.Event {
	event := models.Event{
		ID:     item.ID,
		Title:  item.Subject,
		AllDay: item.IsAllDay,
		Link:   item.WebLink,
	}
	if item.Body != nil {
		event.Description = item.Body.Content
	} else {
		event.Description = item.BodyPreview
	}
	if item.Location != nil {
		event.Location = item.Location.DisplayName
	}

	event.StartTime = parseGraphTime(item.Start, now)
	fallbackEnd := event.StartTime.Add(time.Hour)
	if item.IsAllDay {
		event.StartTime = event.StartTime.Truncate(24 * time.Hour)
		fallbackEnd = event.StartTime.AddDate(0, 0, 1)
	}
	event.EndTime = parseGraphTime(item.End, fallbackEnd)
	if event.EndTime.Before(event.StartTime) || event.EndTime.Equal(event.StartTime) {
		event.EndTime = fallbackEnd
	}

	for _, attendee := range item.Attendees {
		event.Attendees = append(event.Attendees, attendee.EmailAddress.Address)
	}
	return event
}

func parseGraphTime(gdt *graphDateTime, fallback time.Time) time.Time {
	if gdt == nil || gdt.DateTime == "" {
		return fallback
	}
	loc := time.UTC
	if gdt.TimeZone != "" {
		if parsed, err := time.LoadLocation(gdt.TimeZone); err == nil {
			loc = parsed
		}
	}
	if t, err := time.ParseInLocation(graphDateTimeLayout, gdt.DateTime, loc); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, gdt.DateTime); err == nil {
		return t.UTC()
	}
	return fallback
}

func eventToGraph(draft models.EventDraft) *graphEvent {
	event := &graphEvent{
		Subject: draft.Title,
		Start:   &graphDateTime{DateTime: draft.Start.UTC().Format(graphDateTimeLayout), TimeZone: "UTC"},
		End:     &graphDateTime{DateTime: draft.End.UTC().Format(graphDateTimeLayout), TimeZone: "UTC"},
	}
	if draft.Description != "" {
		event.Body = &struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		}{ContentType: "text", Content: draft.Description}
	}
	if draft.Location != "" {
		event.Location = &struct {
			DisplayName string `json:"displayName"`
		}{DisplayName: draft.Location}
	}
	for _, email := range draft.Attendees {
		attendee := graphAttendee{Type: "required"}
		attendee.EmailAddress.Address = email
		event.Attendees = append(event.Attendees, attendee)
	}
	return event
}

// patchToGraph builds the sparse PATCH body, only the fields the caller
// actually set.
func patchToGraph(patch models.EventPatch) map[string]any {
	body := map[string]any{}
	if patch.Title != nil {
		body["subject"] = *patch.Title
	}
	if patch.Description != nil {
		body["body"] = map[string]string{"contentType": "text", "content": *patch.Description}
	}
	if patch.Location != nil {
		body["location"] = map[string]string{"displayName": *patch.Location}
	}
	if patch.Start != nil {
		body["start"] = graphDateTime{DateTime: patch.Start.UTC().Format(graphDateTimeLayout), TimeZone: "UTC"}
	}
	if patch.End != nil {
		body["end"] = graphDateTime{DateTime: patch.End.UTC().Format(graphDateTimeLayout), TimeZone: "UTC"}
	}
	if patch.Attendees != nil {
		attendees := make([]graphAttendee, 0, len(patch.Attendees))
		for _, email := range patch.Attendees {
			attendee := graphAttendee{Type: "required"}
			attendee.EmailAddress.Address = email
			attendees = append(attendees, attendee)
		}
		body["attendees"] = attendees
	}
	return body
}
