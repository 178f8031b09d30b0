// Package llm provides the completion service the interpretation engine
// consumes: prompt in, text out, bounded timeout, nothing else.
package llm

import "context"

// Completer is the completion service contract. Implementations must
// honor ctx cancellation and steer the model toward JSON output when
// asked, but the caller owns all parsing of the returned text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
