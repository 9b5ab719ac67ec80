package interfaces

import "context"

// Sender delivers a rendered summary.
type Sender interface {
	Send(ctx context.Context, subject, text, html string) error
}
