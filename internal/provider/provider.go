// Package provider defines the uniform capability surface every calendar
// back end implements, and the registry the dispatcher resolves adapters
// from. All identifiers at this boundary are native: prefixing and
// stripping is the caller's job, which is what keeps adapters
// interchangeable.
package provider

import (
	"context"
	"errors"
	"time"

	"calagent/internal/models"
)

// ErrAuth indicates an adapter could not obtain a usable credential:
// expired refresh token, missing client secret, or an interactive grant
// the user has not completed. It is fatal for that provider's actions
// only.
var ErrAuth = errors.New("provider authentication failed")

// Adapter is the capability set shared by all three back ends.
//
// Authenticate is idempotent: a valid cached credential returns success
// without network I/O, and concurrent calls for the same provider
// identity never race to persist two different refreshed credentials.
type Adapter interface {
	Provider() models.ProviderTag
	Authenticate(ctx context.Context) error
	Calendars(ctx context.Context) ([]models.Calendar, error)
	Events(ctx context.Context, calendarID string, from, to time.Time) ([]models.Event, error)
	CreateEvent(ctx context.Context, calendarID string, draft models.EventDraft) (models.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, patch models.EventPatch) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// CredentialStore persists provider credentials between runs. Load
// returns nil data when no credential has been stored yet.
type CredentialStore interface {
	Load(provider models.ProviderTag) ([]byte, error)
	Save(provider models.ProviderTag, data []byte) error
}
