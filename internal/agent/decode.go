package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"calagent/internal/models"
)

// ErrDecode indicates the completion text did not match the canonical
// schema. It is recovered locally via the fallback heuristics and never
// surfaced to the user as a failure.
var ErrDecode = errors.New("completion output did not match action schema")

type wireResult struct {
	Message    string       `json:"message"`
	Actions    []wireAction `json:"actions"`
	Confidence float64      `json:"confidence"`
}

type wireAction struct {
	Type       string     `json:"type"`
	CalendarID string     `json:"calendar_id"`
	EventID    string     `json:"event_id"`
	Event      *wireEvent `json:"event"`
	Updates    *wireEvent `json:"updates"`
	Query      *wireQuery `json:"query_params"`
}

type wireEvent struct {
	Summary     *string  `json:"summary"`
	Description *string  `json:"description"`
	Location    *string  `json:"location"`
	Start       *string  `json:"start"`
	End         *string  `json:"end"`
	Attendees   []string `json:"attendees"`
}

type wireQuery struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// decode performs the strict structured parse of a completion response.
// Any deviation from the schema, an out-of-range confidence, a missing
// per-type field, or an unparseable or inverted time range fails with
// ErrDecode.
func decode(schema *jsonschema.Schema, raw string) (models.Interpretation, error) {
	text := extractJSON(raw)

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return models.Interpretation{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := schema.Validate(doc); err != nil {
		return models.Interpretation{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return models.Interpretation{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	result := models.Interpretation{
		Message:    wire.Message,
		Confidence: wire.Confidence,
	}
	for i, wa := range wire.Actions {
		action, err := convert(wa)
		if err != nil {
			return models.Interpretation{}, fmt.Errorf("%w: action %d: %v", ErrDecode, i, err)
		}
		result.Actions = append(result.Actions, action)
	}
	return result, nil
}

func convert(wa wireAction) (models.Action, error) {
	action := models.Action{
		Type:       models.ActionType(wa.Type),
		CalendarID: wa.CalendarID,
		EventID:    wa.EventID,
	}

	switch action.Type {
	case models.ActionCreateEvent:
		if wa.Event == nil {
			return models.Action{}, errors.New("create_event requires an event")
		}
		draft, err := toDraft(wa.Event)
		if err != nil {
			return models.Action{}, err
		}
		action.Event = &draft

	case models.ActionUpdateEvent:
		if wa.EventID == "" {
			return models.Action{}, errors.New("update_event requires an event_id")
		}
		if wa.Updates == nil {
			return models.Action{}, errors.New("update_event requires updates")
		}
		patch, err := toPatch(wa.Updates)
		if err != nil {
			return models.Action{}, err
		}
		action.Updates = &patch

	case models.ActionDeleteEvent:
		if wa.EventID == "" {
			return models.Action{}, errors.New("delete_event requires an event_id")
		}

	case models.ActionQuery:
		q := models.QueryParams{}
		if wa.Query != nil {
			var err error
			if wa.Query.Start != "" {
				if q.Start, err = parseTime(wa.Query.Start); err != nil {
					return models.Action{}, err
				}
			}
			if wa.Query.End != "" {
				if q.End, err = parseTime(wa.Query.End); err != nil {
					return models.Action{}, err
				}
			}
		}
		action.Query = &q

	default:
		return models.Action{}, fmt.Errorf("unknown action type %q", wa.Type)
	}

	return action, nil
}

func toDraft(we *wireEvent) (models.EventDraft, error) {
	draft := models.EventDraft{Attendees: we.Attendees}
	if we.Summary != nil {
		draft.Title = *we.Summary
	}
	if we.Description != nil {
		draft.Description = *we.Description
	}
	if we.Location != nil {
		draft.Location = *we.Location
	}
	var err error
	if we.Start != nil {
		if draft.Start, err = parseTime(*we.Start); err != nil {
			return models.EventDraft{}, err
		}
	}
	if we.End != nil {
		if draft.End, err = parseTime(*we.End); err != nil {
			return models.EventDraft{}, err
		}
	}
	if !draft.Start.IsZero() && !draft.End.IsZero() && draft.End.Before(draft.Start) {
		return models.EventDraft{}, errors.New("event end precedes start")
	}
	return draft, nil
}

func toPatch(we *wireEvent) (models.EventPatch, error) {
	patch := models.EventPatch{
		Title:       we.Summary,
		Description: we.Description,
		Location:    we.Location,
		Attendees:   we.Attendees,
	}
	if we.Start != nil {
		t, err := parseTime(*we.Start)
		if err != nil {
			return models.EventPatch{}, err
		}
		patch.Start = &t
	}
	if we.End != nil {
		t, err := parseTime(*we.End)
		if err != nil {
			return models.EventPatch{}, err
		}
		patch.End = &t
	}
	if patch.Start != nil && patch.End != nil && patch.End.Before(*patch.Start) {
		return models.EventPatch{}, errors.New("event end precedes start")
	}
	return patch, nil
}

// parseTime accepts RFC 3339 timestamps, zoneless ISO-8601 (implied UTC),
// and bare dates (midnight UTC).
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// extractJSON strips markdown code fences and surrounding prose; models
// occasionally wrap the object even when asked for bare JSON.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndex(s, "}"); j >= 0 && j < len(s)-1 {
		s = s[:j+1]
	}
	return s
}
