package store

import (
	"path/filepath"
	"testing"

	"calagent/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCredentialRoundTrip(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Load(models.ProviderGoogle)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got != nil {
		t.Errorf("Load before Save = %v, want nil", got)
	}

	if err := s.Save(models.ProviderGoogle, []byte(`{"access_token":"abc"}`)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, err = s.Load(models.ProviderGoogle)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if string(got) != `{"access_token":"abc"}` {
		t.Errorf("Load = %s, want the saved blob", got)
	}

	// Overwrite replaces, never duplicates.
	if err := s.Save(models.ProviderGoogle, []byte(`{"access_token":"def"}`)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, _ = s.Load(models.ProviderGoogle)
	if string(got) != `{"access_token":"def"}` {
		t.Errorf("Load after overwrite = %s", got)
	}
}

func TestCalendarCache(t *testing.T) {
	s := openTestStore(t)

	calendars := []models.Calendar{
		{ID: "google_primary", Name: "Personal", Provider: models.ProviderGoogle, Email: "me@example.com"},
		{ID: "microsoft_work", Name: "Work", Provider: models.ProviderMicrosoft},
	}
	if err := s.SaveCalendars(calendars); err != nil {
		t.Fatalf("SaveCalendars returned error: %v", err)
	}

	got, err := s.Calendars()
	if err != nil {
		t.Fatalf("Calendars returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d calendars, want 2", len(got))
	}

	// A second save replaces the cache wholesale.
	if err := s.SaveCalendars(calendars[:1]); err != nil {
		t.Fatalf("SaveCalendars returned error: %v", err)
	}
	got, _ = s.Calendars()
	if len(got) != 1 || got[0].ID != "google_primary" {
		t.Errorf("calendars after replace = %+v", got)
	}
}

func TestActivityLog(t *testing.T) {
	s := openTestStore(t)

	outcomes := []models.Outcome{
		{
			Action:    models.Action{Type: models.ActionCreateEvent, CalendarID: "google_primary"},
			Succeeded: true,
			Result:    "evt1",
		},
		{
			Action: models.Action{Type: models.ActionDeleteEvent, CalendarID: "bogus"},
			Error:  "unrecognized calendar id",
		},
	}
	for _, o := range outcomes {
		if err := s.RecordOutcome(o); err != nil {
			t.Fatalf("RecordOutcome returned error: %v", err)
		}
	}

	entries, err := s.RecentActivity(10)
	if err != nil {
		t.Fatalf("RecentActivity returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Newest first.
	if entries[0].ActionType != string(models.ActionDeleteEvent) {
		t.Errorf("entries[0].ActionType = %q, want the most recent outcome", entries[0].ActionType)
	}
	if entries[0].Succeeded || entries[0].Error != "unrecognized calendar id" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if !entries[1].Succeeded || entries[1].Result != "evt1" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}
