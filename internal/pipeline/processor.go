package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
)

// Deliverer accepts a push payload and announces it to the engine.
type Deliverer interface {
	DeliverPush(ctx context.Context, payload notify.RawPushPayload) (notify.PushHandle, error)
}

// NewProcessor hands each decoded message to the deliverer. A delivery error
// is returned so the message is nacked and redelivered.
func NewProcessor(deliverer Deliverer, logger *slog.Logger) messagepipeline.StreamProcessor[InboundPush] {
	return func(ctx context.Context, original messagepipeline.Message, push *InboundPush) error {
		raw := push.Raw()
		handle, err := deliverer.DeliverPush(ctx, raw)
		if err != nil {
			logger.Error("Failed to deliver push payload", "pubsub_msg_id", original.ID, "err", err)
			return err
		}
		logger.Debug("Push payload delivered", "pubsub_msg_id", original.ID, "handle", handle, "type", int(raw.Type))
		return nil
	}
}
