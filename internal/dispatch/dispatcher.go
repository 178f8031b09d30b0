// Package dispatch routes canonical actions to provider adapters and
// isolates per-action failures: a malformed id or a provider error in one
// action never aborts its siblings.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"calagent/internal/ident"
	"calagent/internal/models"
	"calagent/internal/provider"
)

// ActivityRecorder persists outcomes for later inspection. Implemented by
// the SQLite store.
type ActivityRecorder interface {
	RecordOutcome(o models.Outcome) error
}

const (
	backgroundTimeout = 2 * time.Minute
	defaultQueryRange = 7 * 24 * time.Hour
)

// Dispatcher resolves each action's provider from its namespaced calendar
// id and invokes the matching adapter. Adapters are long-lived singletons
// held by the registry; the dispatcher itself is stateless apart from its
// outcome log.
type Dispatcher struct {
	logger   *slog.Logger
	registry *provider.Registry
	recorder ActivityRecorder
	log      *OutcomeLog
	wg       sync.WaitGroup
	now      func() time.Time
}

// New builds a Dispatcher. recorder may be nil; outcomes are then kept
// only in the in-memory log and the slog stream.
func New(logger *slog.Logger, registry *provider.Registry, recorder ActivityRecorder) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		registry: registry,
		recorder: recorder,
		log:      NewOutcomeLog(),
		now:      time.Now,
	}
}

// Log returns the dispatcher's outcome log.
func (d *Dispatcher) Log() *OutcomeLog {
	return d.log
}

// Enqueue runs Dispatch in the background, detached from the caller's
// context: interpretation responses are sent before their actions
// execute. Outcomes land in the outcome log and the activity recorder.
func (d *Dispatcher) Enqueue(actions []models.Action) {
	if len(actions) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		d.record(d.Dispatch(ctx, actions))
	}()
}

// Wait blocks until all enqueued batches have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Run dispatches synchronously, records the outcomes, and returns them.
// Interactive callers use this instead of Enqueue so they can report
// results before exiting.
func (d *Dispatcher) Run(ctx context.Context, actions []models.Action) []models.Outcome {
	outcomes := d.Dispatch(ctx, actions)
	d.record(outcomes)
	return outcomes
}

// Dispatch executes the actions and returns one outcome per action, in
// input order. Actions fan out one worker per distinct provider; actions
// sharing a provider run sequentially because they share a rate-limited
// credential. Outcome slots are pre-allocated by index and filled in
// place, so ordering never depends on completion order.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []models.Action) []models.Outcome {
	outcomes := make([]models.Outcome, len(actions))

	byProvider := make(map[models.ProviderTag][]int)
	for i, action := range actions {
		outcomes[i].Action = action

		tag, _, err := ident.Denamespace(action.CalendarID)
		if err != nil {
			outcomes[i].Error = ident.ErrMalformedID.Error()
			continue
		}
		if isUnresolved(action) {
			outcomes[i].Error = "unresolved event id: disambiguation required before dispatch"
			continue
		}
		if _, ok := d.registry.Get(tag); !ok {
			outcomes[i].Error = fmt.Sprintf("no adapter registered for provider %q", tag)
			continue
		}
		byProvider[tag] = append(byProvider[tag], i)
	}

	var wg sync.WaitGroup
	for tag, indexes := range byProvider {
		adapter, _ := d.registry.Get(tag)
		wg.Add(1)
		go func(adapter provider.Adapter, indexes []int) {
			defer wg.Done()
			for _, i := range indexes {
				outcomes[i] = d.execute(ctx, adapter, actions[i])
			}
		}(adapter, indexes)
	}
	wg.Wait()

	return outcomes
}

// isUnresolved reports whether the action targets the fallback's
// placeholder event id, which must never reach a provider.
func isUnresolved(a models.Action) bool {
	switch a.Type {
	case models.ActionUpdateEvent, models.ActionDeleteEvent:
		return a.EventID == models.PlaceholderEventID
	}
	return false
}

func (d *Dispatcher) execute(ctx context.Context, adapter provider.Adapter, action models.Action) models.Outcome {
	outcome := models.Outcome{Action: action}

	_, calendarID, err := ident.Denamespace(action.CalendarID)
	if err != nil {
		outcome.Error = ident.ErrMalformedID.Error()
		return outcome
	}
	eventID := ident.EventID(action.EventID)

	switch action.Type {
	case models.ActionCreateEvent:
		created, err := adapter.CreateEvent(ctx, calendarID, *action.Event)
		if err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Succeeded = true
		outcome.Result = created.ID
		if created.Link != "" {
			outcome.Result = created.Link
		}

	case models.ActionUpdateEvent:
		if err := adapter.UpdateEvent(ctx, calendarID, eventID, *action.Updates); err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Succeeded = true
		outcome.Result = eventID

	case models.ActionDeleteEvent:
		if err := adapter.DeleteEvent(ctx, calendarID, eventID); err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Succeeded = true
		outcome.Result = eventID

	case models.ActionQuery:
		from, to := queryRange(action.Query, d.now().UTC())
		events, err := adapter.Events(ctx, calendarID, from, to)
		if err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Succeeded = true
		outcome.Result = fmt.Sprintf("%d events", len(events))

	default:
		outcome.Error = fmt.Sprintf("unknown action type %q", action.Type)
	}

	return outcome
}

func queryRange(q *models.QueryParams, now time.Time) (time.Time, time.Time) {
	from := now
	to := from.Add(defaultQueryRange)
	if q == nil {
		return from, to
	}
	if !q.Start.IsZero() {
		from = q.Start
	}
	if !q.End.IsZero() {
		to = q.End
	} else if !q.Start.IsZero() {
		to = q.Start.Add(defaultQueryRange)
	}
	return from, to
}

// record logs every outcome and persists them via the activity recorder.
// Silent total failure is the one behavior that must never happen.
func (d *Dispatcher) record(outcomes []models.Outcome) {
	d.log.Append(outcomes...)
	for _, o := range outcomes {
		if o.Succeeded {
			d.logger.Info("Action dispatched",
				"type", o.Action.Type, "calendarID", o.Action.CalendarID, "result", o.Result)
		} else {
			d.logger.Error("Action failed",
				"type", o.Action.Type, "calendarID", o.Action.CalendarID, "error", o.Error)
		}
		if d.recorder != nil {
			if err := d.recorder.RecordOutcome(o); err != nil {
				d.logger.Error("Failed to persist outcome", "error", err)
			}
		}
	}
}
