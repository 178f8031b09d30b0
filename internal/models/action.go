package models

import "time"

// ActionType tags the kind of calendar mutation or query an Action
// describes.
type ActionType string

const (
	ActionCreateEvent ActionType = "create_event"
	ActionUpdateEvent ActionType = "update_event"
	ActionDeleteEvent ActionType = "delete_event"
	ActionQuery       ActionType = "query"
)

// PlaceholderEventID marks an update or delete action whose target event
// could not be resolved to a real identifier. The dispatcher refuses to
// send such actions to a provider; callers must disambiguate first.
const PlaceholderEventID = "placeholder_id"

// QueryParams bounds a calendar query.
type QueryParams struct {
	Start time.Time
	End   time.Time
}

// Action is a canonical, provider-agnostic calendar action. CalendarID is
// namespaced; EventID may be namespaced or native depending on where it
// came from, and the dispatcher strips any recognized prefix before
// handing it to an adapter.
type Action struct {
	Type       ActionType
	CalendarID string
	EventID    string
	Event      *EventDraft  // set for create_event
	Updates    *EventPatch  // set for update_event
	Query      *QueryParams // set for query
}

// Interpretation is the result of turning one instruction into actions.
// Confidence is in [0, 1]: a strict structured parse reports the model's
// own confidence, the deterministic fallback always reports 0.7, and a
// failed completion call reports 0 with no actions.
type Interpretation struct {
	Message    string   `json:"message"`
	Actions    []Action `json:"actions"`
	Confidence float64  `json:"confidence"`
}

// Outcome records the result of dispatching a single action. Outcomes are
// reported in the same order as the actions that produced them.
type Outcome struct {
	Action    Action
	Succeeded bool
	Error     string
	Result    string // native id or link returned by the adapter, if any
}
