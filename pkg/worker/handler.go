package worker

import "context"

// Handler processes one stored event notification.
type Handler func(ctx context.Context, evt *Event) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler
