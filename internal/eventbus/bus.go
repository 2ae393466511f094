// Package eventbus carries the audit trail of lifecycle transitions
// (message sent/delivered/read) across an in-process publish/subscribe
// channel, decoupled from the realtime fan-out the Room Router already
// performs directly. Grounded on the teacher's
// internal/handler/amqp/router.go, which wires a watermill message.Router
// over an external broker for cross-node fan-in; this package keeps the
// same message.Router/watermill.LoggerAdapter shape but backs it with
// watermill's in-memory gochannel pub/sub instead of AMQP, since spec §1
// scopes this system to a single server node with no cluster fan-out.
package eventbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic names for the audit events the Message Lifecycle Engine publishes.
const (
	TopicMessageSent      = "message.sent"
	TopicMessageDelivered = "message.delivered"
	TopicMessageRead      = "message.read"
)

// Bus is the in-process event bus: a gochannel Pub/Sub plus the
// message.Router that dispatches to registered handlers.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger *slog.Logger
}

// New builds a Bus. The router is not yet running; call Run to start
// dispatching (done via the Fx lifecycle in module.go).
func New(logger *slog.Logger) (*Bus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, wlogger)

	router, err := message.NewRouter(message.RouterConfig{}, wlogger)
	if err != nil {
		return nil, err
	}

	return &Bus{pubsub: pubsub, router: router, logger: logger}, nil
}

// Publish fires an audit event at topic, fire-and-forget. Callers must
// never block a request path on the result; publish failures are logged,
// not propagated, since audit delivery is best-effort by design.
func (b *Bus) Publish(topic string, payload []byte) {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("publishedAt", time.Now().UTC().Format(time.RFC3339))
	if err := b.pubsub.Publish(topic, msg); err != nil {
		b.logger.Warn("eventbus: publish failed", slog.String("topic", topic), slog.Any("err", err))
	}
}

// Subscribe registers a no-publish handler for topic, the consumption side
// of the audit trail (e.g. structured logging, future metrics export).
func (b *Bus) Subscribe(handlerName, topic string, handler message.NoPublishHandlerFunc) {
	b.router.AddNoPublisherHandler(handlerName, topic, b.pubsub, handler)
}

// Run blocks dispatching messages to subscribed handlers until ctx is
// cancelled or Close is called.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Close stops the router and closes the underlying pub/sub.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubsub.Close()
}
