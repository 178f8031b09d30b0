package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"calagent/internal/models"
)

// fakeCompleter returns a canned response or error.
type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCalendars() []models.Calendar {
	return []models.Calendar{
		{ID: "google_primary", Name: "Personal", Provider: models.ProviderGoogle},
		{ID: "microsoft_work", Name: "Work", Provider: models.ProviderMicrosoft},
		{ID: "caldav_/calendars/user/home/", Name: "Apple Calendar", Provider: models.ProviderCalDAV},
	}
}

func TestInterpretStructuredResponse(t *testing.T) {
	completer := &fakeCompleter{response: `{
		"message": "I'll add that to your Apple calendar.",
		"confidence": 0.95,
		"actions": [{
			"type": "create_event",
			"calendar_id": "caldav_/calendars/user/home/",
			"event": {
				"summary": "Dentist",
				"start": "2026-09-01T10:00:00Z",
				"end": "2026-09-01T11:00:00Z"
			}
		}]
	}`}
	a, err := New(testLogger(), completer)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	got := a.Interpret(context.Background(), "add a dentist appointment to my Apple calendar", testCalendars(), time.Now())
	if got.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", got.Confidence)
	}
	if len(got.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(got.Actions))
	}
	action := got.Actions[0]
	if action.Type != models.ActionCreateEvent {
		t.Errorf("action type = %q, want create_event", action.Type)
	}
	if action.CalendarID != "caldav_/calendars/user/home/" {
		t.Errorf("calendar id = %q, want the caldav calendar", action.CalendarID)
	}
	if action.Event == nil || action.Event.Title != "Dentist" {
		t.Errorf("event draft = %+v, want title Dentist", action.Event)
	}
	if !action.Event.End.After(action.Event.Start) {
		t.Errorf("event end %v not after start %v", action.Event.End, action.Event.Start)
	}
}

func TestInterpretFencedResponse(t *testing.T) {
	completer := &fakeCompleter{response: "Here you go:\n```json\n" + `{
		"message": "Done.",
		"confidence": 0.9,
		"actions": []
	}` + "\n```"}
	a, err := New(testLogger(), completer)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	got := a.Interpret(context.Background(), "thanks", testCalendars(), time.Now())
	if got.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want fenced JSON to decode strictly", got.Confidence)
	}
	if len(got.Actions) != 0 {
		t.Errorf("got %d actions, want 0", len(got.Actions))
	}
}

func TestInterpretCompletionFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("connection refused")}
	a, err := New(testLogger(), completer)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	got := a.Interpret(context.Background(), "schedule a meeting with Alex tomorrow", testCalendars(), time.Now())
	if got.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 on transport failure", got.Confidence)
	}
	if len(got.Actions) != 0 {
		t.Errorf("got %d actions, want none guessed on transport failure", len(got.Actions))
	}
	if !strings.Contains(got.Message, "connection refused") {
		t.Errorf("message %q should carry the underlying error", got.Message)
	}
}

func TestInterpretUndencodableFallsBack(t *testing.T) {
	completer := &fakeCompleter{response: "Sure, I'll schedule that for you!"}
	a, err := New(testLogger(), completer)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	got := a.Interpret(context.Background(), "Schedule a meeting with Alex tomorrow at 2pm", testCalendars(), time.Now())
	if got.Confidence != fallbackConfidence {
		t.Errorf("Confidence = %v, want %v", got.Confidence, fallbackConfidence)
	}
	if len(got.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(got.Actions))
	}
	if got.Actions[0].Type != models.ActionCreateEvent {
		t.Errorf("action type = %q, want create_event", got.Actions[0].Type)
	}
	if got.Actions[0].CalendarID != "google_primary" {
		t.Errorf("calendar id = %q, want first known calendar", got.Actions[0].CalendarID)
	}
}

func TestInterpretEmptyCalendarsUsesDefault(t *testing.T) {
	completer := &fakeCompleter{response: "not json"}
	a, err := New(testLogger(), completer)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	got := a.Interpret(context.Background(), "add a team lunch", nil, time.Now())
	if len(got.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(got.Actions))
	}
	if got.Actions[0].CalendarID != defaultCalendarID {
		t.Errorf("calendar id = %q, want %q", got.Actions[0].CalendarID, defaultCalendarID)
	}
	if len(completer.prompts) != 1 || !strings.Contains(completer.prompts[0], "My Calendar") {
		t.Errorf("prompt should list the synthesized default calendar")
	}
}
