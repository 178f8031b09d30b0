// Package google adapts the Google Calendar REST API to the uniform
// provider contract. All identifiers at this boundary are Google-native.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calagent/internal/models"
	"calagent/internal/provider"
)

// Adapter is the long-lived Google Calendar adapter. One instance serves
// all requests; credential refresh is serialized internally.
type Adapter struct {
	logger *slog.Logger
	oauth  *oauth2.Config
	creds  provider.CredentialStore

	group   singleflight.Group
	mu      sync.Mutex
	service *calendar.Service
}

// New builds the adapter. No network I/O happens until the first call
// that needs an authenticated service.
func New(logger *slog.Logger, clientID, clientSecret string, creds provider.CredentialStore) *Adapter {
	return &Adapter{
		logger: logger,
		creds:  creds,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarScope},
			Endpoint:     googleauth.Endpoint,
		},
	}
}

// Provider implements provider.Adapter.
func (a *Adapter) Provider() models.ProviderTag {
	return models.ProviderGoogle
}

// AuthURL returns the URL for the interactive grant.
func (a *Adapter) AuthURL() string {
	return a.oauth.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
}

// ExchangeCode trades an authorization code for a token and persists it.
func (a *Adapter) ExchangeCode(ctx context.Context, code string) error {
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return a.saveToken(token)
}

// Authenticate is idempotent: a cached service means a valid credential
// and returns without I/O. Otherwise the stored token is loaded and
// refreshed, and the refreshed credential persisted.
func (a *Adapter) Authenticate(ctx context.Context) error {
	_, err := a.ensureService(ctx)
	return err
}

// ensureService returns the authenticated calendar service, constructing
// it at most once per credential lifetime. Concurrent callers collapse
// into a single credential load via singleflight.
func (a *Adapter) ensureService(ctx context.Context) (*calendar.Service, error) {
	a.mu.Lock()
	if a.service != nil {
		svc := a.service
		a.mu.Unlock()
		return svc, nil
	}
	a.mu.Unlock()

	v, err, _ := a.group.Do("auth", func() (any, error) {
		token, err := a.loadToken()
		if err != nil {
			return nil, err
		}
		if token == nil {
			return nil, fmt.Errorf("%w: no Google token stored, run the auth command first", provider.ErrAuth)
		}

		source := &persistingTokenSource{
			source: a.oauth.TokenSource(context.Background(), token),
			save:   a.saveToken,
			last:   token,
		}
		// Force one refresh now so a dead refresh token fails here, not
		// mid-operation.
		if _, err := source.Token(); err != nil {
			return nil, fmt.Errorf("%w: %v", provider.ErrAuth, err)
		}

		svc, err := calendar.NewService(ctx, option.WithTokenSource(source))
		if err != nil {
			return nil, fmt.Errorf("failed to create calendar service: %w", err)
		}

		a.mu.Lock()
		a.service = svc
		a.mu.Unlock()
		return svc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*calendar.Service), nil
}

// Calendars lists the account's calendars with native identifiers.
func (a *Adapter) Calendars(ctx context.Context) ([]models.Calendar, error) {
	svc, err := a.ensureService(ctx)
	if err != nil {
		return nil, err
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	var calendars []models.Calendar
	for _, item := range list.Items {
		calendars = append(calendars, models.Calendar{
			ID:       item.Id,
			Name:     item.Summary,
			Provider: models.ProviderGoogle,
			Email:    item.Id,
			Color:    item.BackgroundColor,
		})
	}
	a.logger.Debug("Listed Google calendars", "count", len(calendars))
	return calendars, nil
}

// Events lists events in [from, to), normalized to absolute timestamps.
func (a *Adapter) Events(ctx context.Context, calendarID string, from, to time.Time) ([]models.Event, error) {
	svc, err := a.ensureService(ctx)
	if err != nil {
		return nil, err
	}

	list, err := svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]models.Event, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, eventFromAPI(item, time.Now().UTC()))
	}
	a.logger.Info("Fetched events from Google Calendar", "count", len(events), "calendarID", calendarID)
	return events, nil
}

// CreateEvent inserts a new event and returns it with its native id.
func (a *Adapter) CreateEvent(ctx context.Context, calendarID string, draft models.EventDraft) (models.Event, error) {
	svc, err := a.ensureService(ctx)
	if err != nil {
		return models.Event{}, err
	}

	draft = provider.NormalizeDraft(draft, time.Now())
	created, err := svc.Events.Insert(calendarID, eventToAPI(draft)).Context(ctx).Do()
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to create event: %w", err)
	}

	a.logger.Info("Created event", "provider", "google", "op", "create", "eventID", created.Id)
	return eventFromAPI(created, time.Now().UTC()), nil
}

// UpdateEvent applies a partial update to an existing event.
func (a *Adapter) UpdateEvent(ctx context.Context, calendarID, eventID string, patch models.EventPatch) error {
	svc, err := a.ensureService(ctx)
	if err != nil {
		return err
	}

	event, err := svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get event for update: %w", err)
	}

	applyPatch(event, patch)
	if _, err := svc.Events.Update(calendarID, eventID, event).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	a.logger.Info("Updated event", "provider", "google", "op", "update", "eventID", eventID)
	return nil
}

// DeleteEvent removes an event.
func (a *Adapter) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	svc, err := a.ensureService(ctx)
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	a.logger.Info("Deleted event", "provider", "google", "op", "delete", "eventID", eventID)
	return nil
}

func (a *Adapter) loadToken() (*oauth2.Token, error) {
	data, err := a.creds.Load(models.ProviderGoogle)
	if err != nil {
		return nil, fmt.Errorf("failed to load Google credential: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode stored Google credential: %w", err)
	}
	return &token, nil
}

func (a *Adapter) saveToken(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode Google credential: %w", err)
	}
	return a.creds.Save(models.ProviderGoogle, data)
}

// persistingTokenSource wraps an oauth2.TokenSource and persists every
// refreshed token. The mutex serializes refreshes so concurrent callers
// never race to store two different credentials.
type persistingTokenSource struct {
	mu     sync.Mutex
	source oauth2.TokenSource
	save   func(*oauth2.Token) error
	last   *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}
	if s.last == nil || s.last.AccessToken != token.AccessToken {
		if err := s.save(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		s.last = token
	}
	return token, nil
}
