package microsoft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"calagent/internal/models"
	"calagent/internal/provider"
)

// testAdapter wires an Adapter straight to a test server, skipping the
// OAuth handshake.
func testAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "id", "secret", "common", nil)
	a.baseURL = srv.URL
	a.client = srv.Client()
	return a
}

func TestCalendars(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/calendars" {
			t.Errorf("path = %q, want /me/calendars", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"id": "cal1", "name": "Work", "owner": map[string]string{"address": "me@example.com"}},
			},
		})
	}))

	got, err := a.Calendars(context.Background())
	if err != nil {
		t.Fatalf("Calendars returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d calendars, want 1", len(got))
	}
	want := models.Calendar{ID: "cal1", Name: "Work", Provider: models.ProviderMicrosoft, Email: "me@example.com"}
	if got[0] != want {
		t.Errorf("calendar = %+v, want %+v", got[0], want)
	}
}

func TestEventsSetsUTCPreference(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Prefer"); got != `outlook.timezone="UTC"` {
			t.Errorf("Prefer header = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"id":      "evt1",
					"subject": "Standup",
					"start":   map[string]string{"dateTime": "2026-09-01T10:00:00.0000000", "timeZone": "UTC"},
					"end":     map[string]string{"dateTime": "2026-09-01T10:15:00.0000000", "timeZone": "UTC"},
				},
			},
		})
	}))

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	got, err := a.Events(context.Background(), "cal1", from, from.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("Events returned error: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Standup" {
		t.Fatalf("events = %+v", got)
	}
}

func TestCreateEvent(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		var body graphEvent
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if body.Subject != "Review" {
			t.Errorf("subject = %q", body.Subject)
		}
		body.ID = "evt-new"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(body)
	}))

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	got, err := a.CreateEvent(context.Background(), "cal1", models.EventDraft{
		Title: "Review", Start: start, End: start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}
	if got.ID != "evt-new" {
		t.Errorf("ID = %q, want evt-new", got.ID)
	}
}

func TestUnauthorizedMapsToErrAuth(t *testing.T) {
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := a.Calendars(context.Background())
	if !errors.Is(err, provider.ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}

func TestAuthenticateWithoutToken(t *testing.T) {
	a := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "id", "secret", "common", emptyStore{})
	err := a.Authenticate(context.Background())
	if !errors.Is(err, provider.ErrAuth) {
		t.Errorf("error = %v, want ErrAuth when no token is stored", err)
	}
}

type emptyStore struct{}

func (emptyStore) Load(models.ProviderTag) ([]byte, error) { return nil, nil }
func (emptyStore) Save(models.ProviderTag, []byte) error   { return nil }

// countingStore tracks how many credentials are persisted.
type countingStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (s *countingStore) Load(models.ProviderTag) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, nil
}

func (s *countingStore) Save(tag models.ProviderTag, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestConcurrentAuthenticateSingleRefresh(t *testing.T) {
	var tokenCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"refreshed","token_type":"Bearer","expires_in":3600,"refresh_token":"r1"}`)
	}))
	defer srv.Close()

	stale := oauth2.Token{AccessToken: "stale", RefreshToken: "r1", Expiry: time.Now().Add(-time.Hour)}
	data, err := json.Marshal(&stale)
	if err != nil {
		t.Fatal(err)
	}
	store := &countingStore{data: data}

	a := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "id", "secret", "common", store)
	a.oauth.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Authenticate(context.Background()); err != nil {
				t.Errorf("Authenticate returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&tokenCalls); got != 1 {
		t.Errorf("token endpoint hit %d times, want exactly 1 refresh", got)
	}
	if got := store.saveCount(); got != 1 {
		t.Errorf("credential persisted %d times, want exactly 1", got)
	}
}
