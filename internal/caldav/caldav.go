package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"calagent/internal/models"
	"calagent/internal/provider"
)

// basicAuthTransport adds Basic Auth and a stable User-Agent to every
// request. CalDAV servers like iCloud reject requests without both.
type basicAuthTransport struct {
	username  string
	password  string
	transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("User-Agent", "calagent/1.0")
	return t.transport.RoundTrip(req)
}

// Adapter speaks the CalDAV protocol against any RFC 4791 server. The
// calendar's native identifier is its server path, discovered from the
// principal's calendar home set.
type Adapter struct {
	logger       *slog.Logger
	serverURL    string
	username     string
	caldavClient *caldav.Client
	webdavClient *webdav.Client

	group     singleflight.Group
	mu        sync.Mutex
	calendars []caldav.Calendar
}

func New(logger *slog.Logger, serverURL, username, password string) (*Adapter, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("caldav server URL is required")
	}
	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username:  username,
			password:  password,
			transport: http.DefaultTransport,
		},
	}

	caldavClient, err := caldav.NewClient(httpClient, serverURL)
	if err != nil {
		return nil, fmt.Errorf("creating caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, serverURL)
	if err != nil {
		return nil, fmt.Errorf("creating webdav client: %w", err)
	}

	return &Adapter{
		logger:       logger,
		serverURL:    strings.TrimSuffix(serverURL, "/"),
		username:     username,
		caldavClient: caldavClient,
		webdavClient: webdavClient,
	}, nil
}

func (a *Adapter) Provider() models.ProviderTag {
	return models.ProviderCalDAV
}

// Authenticate verifies the credentials by running calendar discovery.
// Basic auth has no token exchange, so a successful PROPFIND is the
// whole handshake.
func (a *Adapter) Authenticate(ctx context.Context) error {
	_, err := a.discover(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrAuth, err)
	}
	return nil
}

// discover walks principal -> calendar home set -> calendars, caching
// the result. Concurrent callers share one round of PROPFINDs.
func (a *Adapter) discover(ctx context.Context) ([]caldav.Calendar, error) {
	a.mu.Lock()
	if a.calendars != nil {
		cached := a.calendars
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	result, err, _ := a.group.Do("discover", func() (any, error) {
		principal, err := a.caldavClient.FindCurrentUserPrincipal(ctx)
		if err != nil {
			return nil, fmt.Errorf("finding principal: %w", err)
		}
		homeSet, err := a.caldavClient.FindCalendarHomeSet(ctx, principal)
		if err != nil {
			return nil, fmt.Errorf("finding calendar home set: %w", err)
		}
		calendars, err := a.caldavClient.FindCalendars(ctx, homeSet)
		if err != nil {
			return nil, fmt.Errorf("finding calendars: %w", err)
		}
		a.mu.Lock()
		a.calendars = calendars
		a.mu.Unlock()
		a.logger.Info("discovered caldav calendars", "count", len(calendars))
		return calendars, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]caldav.Calendar), nil
}

func (a *Adapter) Calendars(ctx context.Context) ([]models.Calendar, error) {
	discovered, err := a.discover(ctx)
	if err != nil {
		return nil, err
	}
	calendars := make([]models.Calendar, 0, len(discovered))
	for _, cal := range discovered {
		name := cal.Name
		if name == "" {
			name = path.Base(strings.TrimSuffix(cal.Path, "/"))
		}
		calendars = append(calendars, models.Calendar{
			ID:       cal.Path,
			Name:     name,
			Provider: models.ProviderCalDAV,
			Email:    a.username,
		})
	}
	return calendars, nil
}

func (a *Adapter) Events(ctx context.Context, calendarID string, from, to time.Time) ([]models.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{
				Name:     "VEVENT",
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: from.UTC(),
				End:   to.UTC(),
			}},
		},
	}
	objects, err := a.caldavClient.QueryCalendar(ctx, calendarID, query)
	if err != nil {
		return nil, fmt.Errorf("querying calendar %s: %w", calendarID, err)
	}
	return eventsFromObjects(objects, time.Now().UTC()), nil
}

func (a *Adapter) CreateEvent(ctx context.Context, calendarID string, draft models.EventDraft) (models.Event, error) {
	draft = provider.NormalizeDraft(draft, time.Now())
	uid := uuid.New().String()

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calagent//EN")
	cal.Children = append(cal.Children, componentFromDraft(uid, draft))

	objectPath := a.objectPath(calendarID, uid)
	if _, err := a.caldavClient.PutCalendarObject(ctx, objectPath, cal); err != nil {
		return models.Event{}, fmt.Errorf("putting calendar object: %w", err)
	}
	a.logger.Info("created event", "provider", "caldav", "event_id", objectPath)

	return models.Event{
		ID:          objectPath,
		Title:       draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		StartTime:   draft.Start,
		EndTime:     draft.End,
		Attendees:   draft.Attendees,
	}, nil
}

func (a *Adapter) UpdateEvent(ctx context.Context, calendarID, eventID string, patch models.EventPatch) error {
	objectPath := a.objectPath(calendarID, eventID)
	object, err := a.caldavClient.GetCalendarObject(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("fetching event %s: %w", eventID, err)
	}
	if object.Data == nil {
		return fmt.Errorf("event %s has no calendar data", eventID)
	}

	var patched bool
	for _, component := range object.Data.Children {
		if component.Name != ical.CompEvent {
			continue
		}
		applyPatch(component, patch)
		patched = true
	}
	if !patched {
		return fmt.Errorf("event %s contains no VEVENT", eventID)
	}

	if _, err := a.caldavClient.PutCalendarObject(ctx, objectPath, object.Data); err != nil {
		return fmt.Errorf("putting updated event %s: %w", eventID, err)
	}
	a.logger.Info("updated event", "provider", "caldav", "event_id", eventID)
	return nil
}

func (a *Adapter) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	objectPath := a.objectPath(calendarID, eventID)
	if err := a.webdavClient.RemoveAll(ctx, objectPath); err != nil {
		return fmt.Errorf("removing event %s: %w", eventID, err)
	}
	a.logger.Info("deleted event", "provider", "caldav", "event_id", eventID)
	return nil
}

// objectPath resolves an event identifier to its .ics resource. Listed
// and created events already carry their full server path, which is the
// only address the server guarantees: an event's resource href is
// independent of its UID when another client created it. A bare UID
// falls back to the <calendar>/<uid>.ics convention used for events
// created here.
func (a *Adapter) objectPath(calendarPath, id string) string {
	if strings.HasPrefix(id, "/") {
		return id
	}
	if strings.HasSuffix(id, ".ics") {
		return path.Join(calendarPath, id)
	}
	return path.Join(calendarPath, id+".ics")
}
