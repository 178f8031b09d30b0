package caldav

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"calagent/internal/models"
)

// Servers are inconsistent about DTSTART formats, so parsing falls back
// through the layouts seen in the wild.
var dateTimeLayouts = []string{
	"20060102T150405Z",
	"20060102T150405",
	"20060102",
	time.RFC3339,
	"2006-01-02",
}

// eventsFromObjects flattens query results into events. The native event
// id is the object's server path, not the VEVENT UID: the href is the
// only address update and delete can rely on, since events created by
// other clients rarely live at <uid>.ics.
func eventsFromObjects(objects []caldav.CalendarObject, now time.Time) []models.Event {
	var events []models.Event
	for _, object := range objects {
		if object.Data == nil {
			continue
		}
		for _, component := range object.Data.Children {
			if component.Name != ical.CompEvent {
				continue
			}
			event := eventFromComponent(component, now)
			event.ID = object.Path
			events = append(events, event)
		}
	}
	return events
}

func eventFromComponent(component *ical.Component, now time.Time) models.Event {
	event := models.Event{
		ID:          propText(component, ical.PropUID),
		Title:       propText(component, ical.PropSummary),
		Description: propText(component, ical.PropDescription),
		Location:    propText(component, ical.PropLocation),
	}

	start, allDay := parseDateProp(component.Props.Get(ical.PropDateTimeStart), now)
	event.StartTime = start
	event.AllDay = allDay

	fallbackEnd := start.Add(time.Hour)
	if allDay {
		fallbackEnd = start.AddDate(0, 0, 1)
	}
	end, _ := parseDateProp(component.Props.Get(ical.PropDateTimeEnd), fallbackEnd)
	event.EndTime = end
	if event.EndTime.Before(event.StartTime) {
		event.EndTime = fallbackEnd
	}

	for _, prop := range component.Props.Values(ical.PropAttendee) {
		event.Attendees = append(event.Attendees, strings.TrimPrefix(prop.Value, "mailto:"))
	}
	return event
}

func propText(component *ical.Component, name string) string {
	prop := component.Props.Get(name)
	if prop == nil {
		return ""
	}
	return prop.Value
}

// parseDateProp resolves a DTSTART or DTEND property. The second return
// reports a date-only (all-day) value, which becomes midnight UTC of
// the named day. A missing or unparseable property yields fallback.
func parseDateProp(prop *ical.Prop, fallback time.Time) (time.Time, bool) {
	if prop == nil {
		return fallback, false
	}
	allDay := prop.ValueType() == ical.ValueDate || len(prop.Value) == 8

	if t, err := prop.DateTime(time.UTC); err == nil {
		return t.UTC(), allDay
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, prop.Value); err == nil {
			return t.UTC(), allDay || layout == "20060102" || layout == "2006-01-02"
		}
	}
	return fallback, false
}

func componentFromDraft(uid string, draft models.EventDraft) *ical.Component {
	event := ical.NewComponent(ical.CompEvent)
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetText(ical.PropSummary, draft.Title)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, draft.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, draft.End.UTC())

	if draft.Description != "" {
		event.Props.SetText(ical.PropDescription, draft.Description)
	}
	if draft.Location != "" {
		event.Props.SetText(ical.PropLocation, draft.Location)
	}
	for _, attendee := range draft.Attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.SetText(fmt.Sprintf("mailto:%s", attendee))
		event.Props.Add(prop)
	}
	return event
}

func applyPatch(component *ical.Component, patch models.EventPatch) {
	if patch.Title != nil {
		component.Props.SetText(ical.PropSummary, *patch.Title)
	}
	if patch.Description != nil {
		component.Props.SetText(ical.PropDescription, *patch.Description)
	}
	if patch.Location != nil {
		component.Props.SetText(ical.PropLocation, *patch.Location)
	}
	if patch.Start != nil {
		component.Props.SetDateTime(ical.PropDateTimeStart, patch.Start.UTC())
	}
	if patch.End != nil {
		component.Props.SetDateTime(ical.PropDateTimeEnd, patch.End.UTC())
	}
	if patch.Attendees != nil {
		component.Props.Del(ical.PropAttendee)
		for _, attendee := range patch.Attendees {
			prop := ical.NewProp(ical.PropAttendee)
			prop.SetText(fmt.Sprintf("mailto:%s", attendee))
			component.Props.Add(prop)
		}
	}
	component.Props.SetDateTime(ical.PropLastModified, time.Now().UTC())
}
