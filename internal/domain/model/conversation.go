package model

import "time"

// Conversation is always between exactly two distinct participants (I-C1).
// UnreadCount is keyed by participant id and must never be negative.
type Conversation struct {
	ID                 string
	ParticipantA       string
	ParticipantB       string
	LastMessageID      string
	LastMessageContent string
	LastMessageTime    *time.Time
	UnreadCount        map[string]int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OtherParticipant returns the participant id that is not userID. It panics
// if userID is not a participant, since that indicates a Store Adapter bug,
// not a client-triggerable condition.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	default:
		panic("model: " + userID + " is not a participant of conversation " + c.ID)
	}
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.ParticipantA || userID == c.ParticipantB
}
