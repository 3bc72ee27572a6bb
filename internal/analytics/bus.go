package analytics

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"cogmux/internal/logging"
	"cogmux/internal/mode"
)

// eventsTopic is the single topic engine events travel on.
const eventsTopic = "cogmux.events"

// Bus carries engine events over an in-process pub/sub channel. The
// engine publishes inline; consumers run on their own goroutines, so a
// slow tracker or store never stretches a dispatch.
type Bus struct {
	pubSub *gochannel.GoChannel
	log    *zap.Logger
}

// NewBus builds an in-process event bus.
func NewBus() *Bus {
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{},
			watermill.NewStdLogger(false, false),
		),
		log: logging.Get(logging.CategoryAnalytics),
	}
}

// Sink returns the publishing side as a mode.Sink for the engine.
func (b *Bus) Sink() mode.Sink {
	return &busSink{bus: b}
}

type busSink struct {
	bus *Bus
}

func (s *busSink) Publish(ev mode.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.bus.log.Warn("event marshal failed", zap.Error(err))
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.bus.pubSub.Publish(eventsTopic, msg); err != nil {
		s.bus.log.Warn("event publish failed", zap.Error(err))
	}
}

// Consume subscribes dst to the event stream. It returns after the
// subscription is live; delivery runs on a background goroutine until
// ctx is cancelled or the bus closes.
func (b *Bus) Consume(ctx context.Context, dst mode.Sink) error {
	messages, err := b.pubSub.Subscribe(ctx, eventsTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var ev mode.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.log.Warn("event unmarshal failed", zap.Error(err))
				msg.Ack() // Ack malformed messages so they never retry.
				continue
			}
			dst.Publish(ev)
			msg.Ack()
		}
	}()
	return nil
}

// Close shuts the channel down. Pending deliveries finish; subscriber
// channels close.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}
