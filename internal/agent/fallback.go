package agent

import (
	"regexp"
	"strings"
	"time"

	"calagent/internal/models"
)

// Deterministic keyword heuristics applied to the original instruction
// when strict decoding fails. First matching keyword group wins; the
// result always carries fallbackConfidence, strictly below a typical
// structured parse, to signal reduced trust downstream.

const fallbackConfidence = 0.7

// defaultCalendarID is the best-effort target when no calendars are known.
const defaultCalendarID = "google_primary"

var (
	createKeywords = []string{"create", "add", "schedule", "new"}
	updateKeywords = []string{"update", "change", "modify", "reschedule", "move"}
	deleteKeywords = []string{"delete", "remove", "cancel"}

	// Ordered: the first pattern to match wins.
	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:meeting|appointment|event|call) (?:with|about) ([^.]+)`),
		regexp.MustCompile(`(?i)(?:schedule|add|create) (?:a|an) ([^.]+)`),
		regexp.MustCompile(`(?i)(?:titled|called|named) "([^"]+)"`),
	}
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:at|in) ([^.]+)`),
		regexp.MustCompile(`(?i)(?:location|place): ([^.]+)`),
	}
)

// fallback guesses zero or one action from the instruction text. rawOutput
// is the undecodable completion text; its first paragraph becomes the
// user-visible message when present.
func fallback(instruction, rawOutput string, calendars []models.Calendar, now time.Time) models.Interpretation {
	result := models.Interpretation{
		Message:    firstParagraph(rawOutput),
		Confidence: fallbackConfidence,
	}

	calendarID := defaultCalendarID
	if len(calendars) > 0 {
		calendarID = calendars[0].ID
	}

	lower := strings.ToLower(instruction)
	switch {
	case containsAny(lower, createKeywords):
		start := nextMorning(now)
		end := start.Add(time.Hour)
		result.Actions = append(result.Actions, models.Action{
			Type:       models.ActionCreateEvent,
			CalendarID: calendarID,
			Event: &models.EventDraft{
				Title:    extractTitle(instruction),
				Location: extractLocation(instruction),
				Start:    start,
				End:      end,
			},
		})

	case containsAny(lower, updateKeywords):
		// No event-resolution capability here: the placeholder id forces
		// disambiguation before dispatch.
		patch := models.EventPatch{}
		if title := matchFirst(titlePatterns, instruction); title != "" {
			patch.Title = &title
		}
		if loc := matchFirst(locationPatterns, instruction); loc != "" {
			patch.Location = &loc
		}
		result.Actions = append(result.Actions, models.Action{
			Type:       models.ActionUpdateEvent,
			CalendarID: calendarID,
			EventID:    models.PlaceholderEventID,
			Updates:    &patch,
		})

	case containsAny(lower, deleteKeywords):
		result.Actions = append(result.Actions, models.Action{
			Type:       models.ActionDeleteEvent,
			CalendarID: calendarID,
			EventID:    models.PlaceholderEventID,
		})
	}

	return result
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func matchFirst(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func extractTitle(text string) string {
	if title := matchFirst(titlePatterns, text); title != "" {
		return title
	}
	return "New Event"
}

func extractLocation(text string) string {
	return matchFirst(locationPatterns, text)
}

// nextMorning returns 9:00 on the calendar day after now, in now's
// location.
func nextMorning(now time.Time) time.Time {
	next := now.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), 9, 0, 0, 0, now.Location())
}

func firstParagraph(raw string) string {
	s := strings.TrimSpace(raw)
	// A half-formed JSON blob makes a poor user-visible message.
	if s == "" || strings.HasPrefix(s, "{") || strings.HasPrefix(s, "```") {
		return "I've processed your request."
	}
	if i := strings.Index(s, "\n\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
