package interfaces

import "context"

// Advisor is the language model channel: a prompt in, free-form text out.
type Advisor interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
