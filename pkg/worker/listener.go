package worker

import "context"

// Listener hooks into the worker lifecycle.
type Listener struct {
	OnStart func(ctx context.Context)
	OnExit  func(ctx context.Context)
	// OnMessageStart is called after a message was decoded, before its handler runs.
	OnMessageStart func(ctx context.Context, evt *Event)
	// OnMessageFinish is called with the handler result. err is nil when no
	// handler matched.
	OnMessageFinish func(ctx context.Context, evt *Event, err error)
	// OnError is called for decode and handler failures. evt is nil when the
	// message could not be decoded.
	OnError func(ctx context.Context, evt *Event, err error)
}
