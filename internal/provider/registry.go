package provider

import (
	"context"
	"fmt"
	"log/slog"

	"calagent/internal/ident"
	"calagent/internal/models"
)

// Registry maps provider tags to their long-lived adapter instances. The
// mapping is resolved once at construction; call sites never re-derive a
// provider by string matching.
type Registry struct {
	logger   *slog.Logger
	adapters map[models.ProviderTag]Adapter
}

// NewRegistry builds a registry from the given adapters. Later adapters
// with a duplicate tag replace earlier ones.
func NewRegistry(logger *slog.Logger, adapters ...Adapter) *Registry {
	m := make(map[models.ProviderTag]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Provider()] = a
	}
	return &Registry{logger: logger, adapters: m}
}

// Get returns the adapter registered for tag.
func (r *Registry) Get(tag models.ProviderTag) (Adapter, bool) {
	a, ok := r.adapters[tag]
	return a, ok
}

// Tags returns the registered provider tags.
func (r *Registry) Tags() []models.ProviderTag {
	tags := make([]models.ProviderTag, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	return tags
}

// Calendars lists calendars from every registered provider, minting
// namespaced identifiers as they are surfaced. A provider that fails to
// authenticate or list is logged and skipped; one broken back end must
// not hide the others' calendars.
func (r *Registry) Calendars(ctx context.Context) ([]models.Calendar, error) {
	var all []models.Calendar
	var failed int
	for tag, a := range r.adapters {
		cals, err := a.Calendars(ctx)
		if err != nil {
			r.logger.Warn("Skipping provider while listing calendars", "provider", tag, "error", err)
			failed++
			continue
		}
		for _, cal := range cals {
			cal.ID = ident.Namespace(tag, cal.ID)
			cal.Provider = tag
			all = append(all, cal)
		}
	}
	if failed == len(r.adapters) && len(r.adapters) > 0 {
		return nil, fmt.Errorf("all %d providers failed to list calendars", failed)
	}
	return all, nil
}
