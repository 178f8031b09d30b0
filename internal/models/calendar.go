package models

// ProviderTag identifies which back end owns a calendar or event.
type ProviderTag string

const (
	ProviderGoogle    ProviderTag = "google"
	ProviderMicrosoft ProviderTag = "microsoft"
	ProviderCalDAV    ProviderTag = "caldav"
)

// Calendar is a calendar as surfaced to the rest of the system. ID is
// always namespaced (see internal/ident); the prefix alone determines
// which adapter serves the calendar.
type Calendar struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Provider ProviderTag `json:"provider"`
	Email    string      `json:"email,omitempty"`
	Color    string      `json:"color,omitempty"`
}
