package worker

import "context"

// RetryDecision defines whether a message should be redelivered.
type RetryDecision struct {
	Retry bool
	Nack  bool
}

// RetryPolicy decides what happens to a message whose handler failed.
type RetryPolicy interface {
	OnError(ctx context.Context, evt *Event, err error) RetryDecision
}

// NoRetry nacks failed messages and leaves redelivery to the broker.
type NoRetry struct{}

func (NoRetry) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return RetryDecision{Retry: false, Nack: true}
}

// DropOnError acks failed messages so they are never redelivered.
type DropOnError struct{}

func (DropOnError) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return RetryDecision{}
}
