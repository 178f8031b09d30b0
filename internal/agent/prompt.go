package agent

import (
	"fmt"
	"strings"
	"time"

	"calagent/internal/models"
)

const systemPrompt = `You are an assistant that helps users manage their calendars.
Interpret the user's request and determine what calendar actions to take.
Always respond with a single JSON object and nothing else.`

// buildPrompt renders the instruction, current time, known calendars, and
// the response schema into the user prompt.
func buildPrompt(instruction string, calendars []models.Calendar, now time.Time) string {
	var sb strings.Builder
	for _, cal := range calendars {
		fmt.Fprintf(&sb, "- %s (ID: %s, Provider: %s)\n", cal.Name, cal.ID, cal.Provider)
	}

	return fmt.Sprintf(`User's request: %s

Current date and time: %s

Available calendars:
%s
Determine what calendar actions to take. Possible action types:
- create_event: create a new event on a calendar
- update_event: update an existing event
- delete_event: delete an existing event
- query: look up events on a calendar

Use the calendar IDs exactly as listed above. Express all times as RFC 3339
timestamps. Respond with a single JSON object matching this schema:

%s`, instruction, now.Format(time.RFC3339), sb.String(), responseSchema)
}
