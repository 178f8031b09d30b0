package agent

import (
	"testing"
	"time"

	"calagent/internal/models"
)

func TestFallbackCreate(t *testing.T) {
	now := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC)
	got := fallback("Schedule a meeting with Alex tomorrow at 2pm", "Sure!", testCalendars(), now)

	if got.Confidence != fallbackConfidence {
		t.Errorf("Confidence = %v, want %v", got.Confidence, fallbackConfidence)
	}
	if got.Message != "Sure!" {
		t.Errorf("Message = %q, want raw output's first paragraph", got.Message)
	}
	if len(got.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(got.Actions))
	}
	action := got.Actions[0]
	if action.Type != models.ActionCreateEvent {
		t.Fatalf("action type = %q, want create_event", action.Type)
	}
	if action.Event == nil {
		t.Fatal("create action has no event draft")
	}
	if action.Event.Title == "" {
		t.Error("extracted title is empty")
	}
	wantStart := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	if !action.Event.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want next morning %v", action.Event.Start, wantStart)
	}
	if !action.Event.End.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("End = %v, want one hour after start", action.Event.End)
	}
}

func TestFallbackUpdateUsesPlaceholder(t *testing.T) {
	got := fallback("Move my dentist visit to Friday", "", testCalendars(), time.Now())
	if len(got.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(got.Actions))
	}
	action := got.Actions[0]
	if action.Type != models.ActionUpdateEvent {
		t.Errorf("action type = %q, want update_event", action.Type)
	}
	if action.EventID != models.PlaceholderEventID {
		t.Errorf("event id = %q, want placeholder", action.EventID)
	}
}

func TestFallbackDeleteUsesPlaceholder(t *testing.T) {
	got := fallback("Cancel the standup", "", testCalendars(), time.Now())
	if len(got.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(got.Actions))
	}
	action := got.Actions[0]
	if action.Type != models.ActionDeleteEvent {
		t.Errorf("action type = %q, want delete_event", action.Type)
	}
	if action.EventID != models.PlaceholderEventID {
		t.Errorf("event id = %q, want placeholder", action.EventID)
	}
}

func TestFallbackNoKeywords(t *testing.T) {
	got := fallback("What's the weather like?", "", testCalendars(), time.Now())
	if len(got.Actions) != 0 {
		t.Errorf("got %d actions, want none for a non-calendar instruction", len(got.Actions))
	}
	if got.Confidence != fallbackConfidence {
		t.Errorf("Confidence = %v, want %v", got.Confidence, fallbackConfidence)
	}
}

func TestFallbackMessageSkipsBrokenJSON(t *testing.T) {
	got := fallback("delete the standup", `{"message": "truncated`, testCalendars(), time.Now())
	if got.Message != "I've processed your request." {
		t.Errorf("Message = %q, want the generic message for JSON-shaped output", got.Message)
	}
}

func TestNextMorning(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	now := time.Date(2026, 12, 31, 23, 45, 0, 0, loc)
	got := nextMorning(now)
	want := time.Date(2027, 1, 1, 9, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("nextMorning(%v) = %v, want %v", now, got, want)
	}
}
