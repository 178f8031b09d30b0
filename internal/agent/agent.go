// Package agent implements the interpretation engine: one natural
// language instruction in, zero or more canonical calendar actions out.
// The engine holds no state across calls; the single suspension point is
// the bounded completion request.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"calagent/internal/llm"
	"calagent/internal/models"
)

// Agent turns instructions into interpretations. Safe for concurrent use:
// requests share only the completion client and the compiled schema.
type Agent struct {
	logger *slog.Logger
	llm    llm.Completer
	schema *jsonschema.Schema
}

// New builds an Agent around the given completion client.
func New(logger *slog.Logger, completer llm.Completer) (*Agent, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &Agent{logger: logger, llm: completer, schema: schema}, nil
}

// Interpret converts an instruction into canonical actions.
//
// Two distinct degraded paths, never merged: a completion that arrived
// but failed strict decoding is recovered with deterministic heuristics
// at confidence 0.7, while a completion call that failed outright yields
// a zero-confidence result with no actions and no guessing.
func (a *Agent) Interpret(ctx context.Context, instruction string, calendars []models.Calendar, now time.Time) models.Interpretation {
	if len(calendars) == 0 {
		calendars = []models.Calendar{{
			ID:       defaultCalendarID,
			Name:     "My Calendar",
			Provider: models.ProviderGoogle,
		}}
	}

	raw, err := a.llm.Complete(ctx, systemPrompt, buildPrompt(instruction, calendars, now))
	if err != nil {
		a.logger.Error("Completion call failed", "error", err)
		return models.Interpretation{
			Message:    fmt.Sprintf("I'm sorry, I couldn't process your request. Error: %v", err),
			Confidence: 0,
		}
	}

	result, err := decode(a.schema, raw)
	if err != nil {
		a.logger.Warn("Falling back to keyword heuristics", "error", err)
		return fallback(instruction, raw, calendars, now)
	}

	a.logger.Info("Interpreted instruction",
		"actions", len(result.Actions), "confidence", result.Confidence)
	return result
}
