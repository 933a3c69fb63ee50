package worker

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// MiddlewareFromWatermill lets Watermill handler middleware such as
// middleware.Recoverer or middleware.Timeout wrap worker handlers.
func MiddlewareFromWatermill(m message.HandlerMiddleware) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, evt *Event) error {
			msg := message.NewMessage(watermill.NewUUID(), message.Payload(evt.Payload))
			msg.SetContext(ctx)
			for key, value := range evt.Metadata {
				msg.Metadata.Set(key, value)
			}
			wrapped := m(func(msg *message.Message) ([]*message.Message, error) {
				return nil, next(msg.Context(), evt)
			})
			_, err := wrapped(msg)
			return err
		}
	}
}
