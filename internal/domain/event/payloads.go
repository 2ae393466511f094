package event

import "time"

// UserStatusPayload backs the user:status broadcast (spec §6).
type UserStatusPayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// UserTypingPayload backs the user:typing event.
type UserTypingPayload struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	IsTyping       bool   `json:"isTyping"`
	ConversationID string `json:"conversationId"`
}

// MessageSender is the expanded {id, username} view of a message's author.
type MessageSender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// MessagePayload is the full Message with its sender expanded, used by
// message:new.
type MessagePayload struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	Sender         MessageSender `json:"sender"`
	Content        string        `json:"content"`
	Type           string        `json:"messageType"`
	Status         string        `json:"status"`
	IsRead         bool          `json:"isRead"`
	DeliveredAt    *time.Time    `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time    `json:"readAt,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	ClientTempID   string        `json:"clientTempId,omitempty"`
}

// MessageSentPayload backs message:sent (sender-only acknowledgement).
type MessageSentPayload struct {
	MessageID      string `json:"messageId"`
	Status         string `json:"status"`
	ConversationID string `json:"conversationId"`
	ClientTempID   string `json:"clientTempId,omitempty"`
}

// MessageStatusPayload backs message:status (delivered/read transitions).
type MessageStatusPayload struct {
	MessageID      string     `json:"messageId"`
	Status         string     `json:"status"`
	ConversationID string     `json:"conversationId"`
	ReadBy         []string   `json:"readBy,omitempty"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// MessageErrorPayload backs message:error.
type MessageErrorPayload struct {
	Error string `json:"error"`
}

// ConversationUnreadUpdatePayload backs conversation:unreadUpdate.
type ConversationUnreadUpdatePayload struct {
	ConversationID string `json:"conversationId"`
	UnreadCount    int    `json:"unreadCount"`
	SenderID       string `json:"senderId,omitempty"`
	SenderUsername string `json:"senderUsername,omitempty"`
	UpdatedBy      string `json:"updatedBy,omitempty"`
	Action         string `json:"action,omitempty"`
}
