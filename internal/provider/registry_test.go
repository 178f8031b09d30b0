package provider

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

type stubAdapter struct {
	tag       models.ProviderTag
	calendars []models.Calendar
	err       error
}

func (s *stubAdapter) Provider() models.ProviderTag           { return s.tag }
func (s *stubAdapter) Authenticate(ctx context.Context) error { return s.err }

func (s *stubAdapter) Calendars(ctx context.Context) ([]models.Calendar, error) {
	return s.calendars, s.err
}

func (s *stubAdapter) Events(ctx context.Context, calendarID string, from, to time.Time) ([]models.Event, error) {
	return nil, s.err
}

func (s *stubAdapter) CreateEvent(ctx context.Context, calendarID string, draft models.EventDraft) (models.Event, error) {
	return models.Event{}, s.err
}

func (s *stubAdapter) UpdateEvent(ctx context.Context, calendarID, eventID string, patch models.EventPatch) error {
	return s.err
}

func (s *stubAdapter) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryCalendarsNamespacesIDs(t *testing.T) {
	r := NewRegistry(testLogger(),
		&stubAdapter{tag: models.ProviderGoogle, calendars: []models.Calendar{{ID: "primary", Name: "Personal"}}},
		&stubAdapter{tag: models.ProviderCalDAV, calendars: []models.Calendar{{ID: "/calendars/user/home/", Name: "Home"}}},
	)

	got, err := r.Calendars(context.Background())
	if err != nil {
		t.Fatalf("Calendars returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d calendars, want 2", len(got))
	}
	for _, cal := range got {
		if !strings.HasPrefix(cal.ID, string(cal.Provider)+"_") {
			t.Errorf("calendar id %q not namespaced with provider %q", cal.ID, cal.Provider)
		}
	}
}

func TestRegistryCalendarsSkipsFailedProvider(t *testing.T) {
	r := NewRegistry(testLogger(),
		&stubAdapter{tag: models.ProviderGoogle, calendars: []models.Calendar{{ID: "primary"}}},
		&stubAdapter{tag: models.ProviderMicrosoft, err: errors.New("token expired")},
	)

	got, err := r.Calendars(context.Background())
	if err != nil {
		t.Fatalf("one healthy provider should be enough: %v", err)
	}
	if len(got) != 1 || got[0].ID != "google_primary" {
		t.Errorf("calendars = %+v", got)
	}
}

func TestRegistryCalendarsAllFailed(t *testing.T) {
	r := NewRegistry(testLogger(),
		&stubAdapter{tag: models.ProviderGoogle, err: errors.New("down")},
		&stubAdapter{tag: models.ProviderMicrosoft, err: errors.New("down")},
	)

	if _, err := r.Calendars(context.Background()); err == nil {
		t.Error("expected an error when every provider fails")
	}
}

func TestNormalizeDraft(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	got := NormalizeDraft(models.EventDraft{}, now)
	if got.Title != "New Event" {
		t.Errorf("Title = %q, want default", got.Title)
	}
	if !got.Start.Equal(now) {
		t.Errorf("Start = %v, want now", got.Start)
	}
	if !got.End.Equal(now.Add(time.Hour)) {
		t.Errorf("End = %v, want start+1h", got.End)
	}

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	inverted := NormalizeDraft(models.EventDraft{Title: "Kept", Start: start, End: start.Add(-time.Hour)}, now)
	if inverted.Title != "Kept" {
		t.Errorf("Title = %q, want untouched", inverted.Title)
	}
	if !inverted.End.Equal(start.Add(time.Hour)) {
		t.Errorf("inverted End = %v, want start+1h", inverted.End)
	}
}
