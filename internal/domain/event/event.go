// Package event defines the outbound envelope every component hands to a
// Session for delivery, and the exact server -> client event names/payload
// shapes from spec §6. No component other than the Event Dispatcher
// constructs a raw Envelope (spec §4.6).
package event

import "encoding/json"

// Name is a closed vocabulary of server -> client event names. Keeping it a
// distinct type (rather than a bare string) makes it impossible to emit an
// event the Event Dispatcher doesn't know about.
type Name string

const (
	UserStatus            Name = "user:status"
	UserTyping            Name = "user:typing"
	MessageNew            Name = "message:new"
	MessageSent           Name = "message:sent"
	MessageStatus         Name = "message:status"
	MessageError          Name = "message:error"
	ConversationUnreadUpd Name = "conversation:unreadUpdate"
)

// Envelope is the wire shape delivered to a single session: an event name
// plus its JSON payload. Sessions marshal this directly; nothing upstream of
// the Event Dispatcher deals in raw bytes.
type Envelope struct {
	Event   Name `json:"event"`
	Payload any  `json:"payload"`
}

// Marshal renders the envelope as the bytes written to the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// New builds an envelope for name/payload. A thin helper so call sites read
// as event.New(event.MessageNew, payload) rather than building the struct
// literal everywhere.
func New(name Name, payload any) Envelope {
	return Envelope{Event: name, Payload: payload}
}
