package model

import (
	"time"

	"github.com/webitel/chat-core/internal/domain/event"
)

// SessionHandle is opaque to every domain component above the transport
// layer — it is whatever the transport hands back from Attach.
type SessionHandle string

// Session is the contract every domain component (Presence Registry, Room
// Router, Message Lifecycle Engine) uses to reach one connected client. The
// transport layer (internal/transport/ws) is the only concrete
// implementation; everything above this interface is transport-agnostic.
//
// Deliver must never block the caller for more than its own backpressure
// policy allows (spec §5): a slow or dead session must not stall fan-out to
// others.
type Session interface {
	Handle() SessionHandle
	UserID() string
	Deliver(e event.Envelope) bool
	Close()
}

// TypingEntry is the runtime-only (conversationId, userId) -> lastSeenAt
// mapping the Typing Tracker maintains.
type TypingEntry struct {
	ConversationID string
	UserID         string
	LastSeenAt     time.Time
}
