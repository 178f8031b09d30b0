package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	msendpoint "golang.org/x/oauth2/microsoft"
	"golang.org/x/sync/singleflight"

	"calagent/internal/models"
	"calagent/internal/provider"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Adapter talks to the Microsoft Graph calendar API over plain HTTP.
// Graph has no official Go client worth the weight, so requests are
// built by hand against the v1.0 REST surface.
type Adapter struct {
	logger  *slog.Logger
	oauth   *oauth2.Config
	creds   provider.CredentialStore
	baseURL string

	group  singleflight.Group
	mu     sync.Mutex
	client *http.Client
}

func New(logger *slog.Logger, clientID, clientSecret, tenant string, creds provider.CredentialStore) *Adapter {
	if tenant == "" {
		tenant = "common"
	}
	return &Adapter{
		logger: logger,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "https://login.microsoftonline.com/common/oauth2/nativeclient",
			Scopes:       []string{"offline_access", "Calendars.ReadWrite"},
			Endpoint:     msendpoint.AzureADEndpoint(tenant),
		},
		creds:   creds,
		baseURL: defaultBaseURL,
	}
}

func (a *Adapter) Provider() models.ProviderTag {
	return models.ProviderMicrosoft
}

// AuthURL returns the consent URL the user must open in a browser.
func (a *Adapter) AuthURL() string {
	return a.oauth.AuthCodeURL("state", oauth2.AccessTypeOffline)
}

// ExchangeCode trades an authorization code for a token and persists it.
func (a *Adapter) ExchangeCode(ctx context.Context, code string) error {
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging Microsoft auth code: %w", err)
	}
	return a.saveToken(token)
}

func (a *Adapter) Authenticate(ctx context.Context) error {
	_, err := a.ensureClient(ctx)
	return err
}

// ensureClient builds the authenticated HTTP client once. Concurrent
// callers share a single token load and refresh.
func (a *Adapter) ensureClient(ctx context.Context) (*http.Client, error) {
	a.mu.Lock()
	if a.client != nil {
		client := a.client
		a.mu.Unlock()
		return client, nil
	}
	a.mu.Unlock()

	result, err, _ := a.group.Do("auth", func() (any, error) {
		token, err := a.loadToken()
		if err != nil {
			return nil, err
		}
		if token == nil {
			return nil, fmt.Errorf("%w: no Microsoft token stored, run the auth command first", provider.ErrAuth)
		}
		source := &persistingTokenSource{
			source: a.oauth.TokenSource(ctx, token),
			save:   a.saveToken,
			last:   token,
		}
		if _, err := source.Token(); err != nil {
			return nil, fmt.Errorf("%w: refreshing Microsoft token: %v", provider.ErrAuth, err)
		}
		client := oauth2.NewClient(ctx, source)
		a.mu.Lock()
		a.client = client
		a.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Client), nil
}

func (a *Adapter) Calendars(ctx context.Context) ([]models.Calendar, error) {
	var payload struct {
		Value []graphCalendar `json:"value"`
	}
	if err := a.get(ctx, "/me/calendars", &payload); err != nil {
		return nil, fmt.Errorf("listing Microsoft calendars: %w", err)
	}
	calendars := make([]models.Calendar, 0, len(payload.Value))
	for _, item := range payload.Value {
		calendars = append(calendars, models.Calendar{
			ID:       item.ID,
			Name:     item.Name,
			Provider: models.ProviderMicrosoft,
			Email:    item.Owner.Address,
			Color:    item.HexColor,
		})
	}
	return calendars, nil
}

func (a *Adapter) Events(ctx context.Context, calendarID string, from, to time.Time) ([]models.Event, error) {
	path := fmt.Sprintf("/me/calendars/%s/calendarView?startDateTime=%s&endDateTime=%s&$top=100&$orderby=start/dateTime",
		url.PathEscape(calendarID),
		url.QueryEscape(from.UTC().Format(time.RFC3339)),
		url.QueryEscape(to.UTC().Format(time.RFC3339)))
	var payload struct {
		Value []graphEvent `json:"value"`
	}
	if err := a.get(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("listing Microsoft events: %w", err)
	}
	now := time.Now().UTC()
	events := make([]models.Event, 0, len(payload.Value))
	for i := range payload.Value {
		events = append(events, eventFromGraph(&payload.Value[i], now))
	}
	return events, nil
}

func (a *Adapter) CreateEvent(ctx context.Context, calendarID string, draft models.EventDraft) (models.Event, error) {
	draft = provider.NormalizeDraft(draft, time.Now())
	path := fmt.Sprintf("/me/calendars/%s/events", url.PathEscape(calendarID))
	var created graphEvent
	if err := a.do(ctx, http.MethodPost, path, eventToGraph(draft), &created); err != nil {
		return models.Event{}, fmt.Errorf("creating Microsoft event: %w", err)
	}
	a.logger.Info("created event", "provider", "microsoft", "event_id", created.ID)
	return eventFromGraph(&created, time.Now().UTC()), nil
}

func (a *Adapter) UpdateEvent(ctx context.Context, calendarID, eventID string, patch models.EventPatch) error {
	if patch.IsZero() {
		return nil
	}
	path := fmt.Sprintf("/me/events/%s", url.PathEscape(eventID))
	body := patchToGraph(patch)
	if err := a.do(ctx, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("updating Microsoft event %s: %w", eventID, err)
	}
	a.logger.Info("updated event", "provider", "microsoft", "event_id", eventID)
	return nil
}

func (a *Adapter) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	path := fmt.Sprintf("/me/events/%s", url.PathEscape(eventID))
	if err := a.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting Microsoft event %s: %w", eventID, err)
	}
	a.logger.Info("deleted event", "provider", "microsoft", "event_id", eventID)
	return nil
}

func (a *Adapter) get(ctx context.Context, path string, out any) error {
	return a.do(ctx, http.MethodGet, path, nil, out)
}

func (a *Adapter) do(ctx context.Context, method, path string, body, out any) error {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Graph returns event times in the mailbox zone unless told otherwise.
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: graph returned %s", provider.ErrAuth, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph %s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(detail))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding graph response: %w", err)
	}
	return nil
}

func (a *Adapter) loadToken() (*oauth2.Token, error) {
	data, err := a.creds.Load(models.ProviderMicrosoft)
	if err != nil {
		return nil, fmt.Errorf("loading Microsoft token: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decoding Microsoft token: %w", err)
	}
	return &token, nil
}

func (a *Adapter) saveToken(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding Microsoft token: %w", err)
	}
	if err := a.creds.Save(models.ProviderMicrosoft, data); err != nil {
		return fmt.Errorf("saving Microsoft token: %w", err)
	}
	return nil
}

// persistingTokenSource writes refreshed tokens back to the credential
// store so a refresh survives process restarts.
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
	if s.last == nil || token.AccessToken != s.last.AccessToken {
		if err := s.save(token); err != nil {
			return nil, err
		}
		s.last = token
	}
	return token, nil
}
