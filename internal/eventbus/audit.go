package eventbus

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
)

// RegisterAuditLogger subscribes a structured-logging handler to every
// lifecycle audit topic, the consumption side of the audit trail published
// by the Message Lifecycle Engine.
func RegisterAuditLogger(bus *Bus, logger *slog.Logger) {
	log := func(topic string) message.NoPublishHandlerFunc {
		return func(msg *message.Message) error {
			logger.Info("audit: lifecycle event",
				slog.String("topic", topic),
				slog.String("payload", string(msg.Payload)))
			return nil
		}
	}

	bus.Subscribe("audit-message-sent", TopicMessageSent, log(TopicMessageSent))
	bus.Subscribe("audit-message-delivered", TopicMessageDelivered, log(TopicMessageDelivered))
	bus.Subscribe("audit-message-read", TopicMessageRead, log(TopicMessageRead))
}
