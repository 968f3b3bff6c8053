package events

import (
	"context"
	"encoding/json"

	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

// Publisher is the outbound side of a message queue.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// Forwarder relays broker events to an external queue as JSON.
type Forwarder struct {
	broker    *Broker
	publisher Publisher
	logger    *zap.Logger
}

func NewForwarder(broker *Broker, publisher Publisher, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{broker: broker, publisher: publisher, logger: logger}
}

// Run blocks until ctx is done or the broker closes. Publish failures are
// logged and the event is skipped.
func (f *Forwarder) Run(ctx context.Context) error {
	sub := f.broker.Subscribe()
	defer f.broker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.C:
			if !ok {
				return nil
			}
			f.forward(ctx, event)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, event types.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("encode event", zap.String("kind", string(event.Kind)), zap.Error(err))
		return
	}
	attrs := map[string]string{"event": string(event.Kind)}
	if event.ProjectID != "" {
		attrs["project_id"] = event.ProjectID
	}
	id, err := f.publisher.Publish(ctx, data, attrs)
	if err != nil {
		f.logger.Warn("forward event", zap.String("kind", string(event.Kind)), zap.Error(err))
		return
	}
	f.logger.Debug("event forwarded", zap.String("kind", string(event.Kind)), zap.String("message_id", id))
}
