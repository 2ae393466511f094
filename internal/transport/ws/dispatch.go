package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/lifecycle"
	"github.com/webitel/chat-core/internal/domain/model"
)

// inboundEnvelope mirrors the client -> server wire shape of spec §6.
type inboundEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type joinLeavePayload struct {
	ConversationID string `json:"conversationId"`
}

type messageSendPayload struct {
	ConversationID string            `json:"conversationId"`
	Content        string            `json:"content"`
	MessageType    model.MessageType `json:"messageType"`
	ClientTempID   string            `json:"clientTempId"`
}

type messageTypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type messageReadPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// decodeConversationID supports both shapes seen in practice for
// join/leave: a bare JSON string, or {"conversationId": "..."}.
func decodeConversationID(payload json.RawMessage) (string, error) {
	var bare string
	if err := json.Unmarshal(payload, &bare); err == nil {
		return bare, nil
	}
	var wrapped joinLeavePayload
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return "", err
	}
	return wrapped.ConversationID, nil
}

// dispatch decodes one inbound frame and routes it to the owning domain
// component (spec §6's client -> server event table).
func (h *Handler) dispatch(s *Session, data []byte) {
	var in inboundEnvelope
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(s, "malformed event")
		return
	}

	ctx := context.Background()

	switch in.Event {
	case "join:conversation":
		h.handleJoin(ctx, s, in.Payload)
	case "leave:conversation":
		h.handleLeave(s, in.Payload)
	case "message:send":
		h.handleSend(ctx, s, in.Payload)
	case "message:typing", "typing:start", "typing:stop":
		h.handleTyping(s, in.Event, in.Payload)
	case "message:read":
		h.handleRead(ctx, s, in.Payload)
	case "conversation:markAllRead":
		h.handleBulkRead(ctx, s, in.Payload)
	default:
		h.logger.Debug("ws: unknown client event", slog.String("event", in.Event))
	}
}

func (h *Handler) sendError(s *Session, message string) {
	s.Deliver(event.New(event.MessageError, event.MessageErrorPayload{Error: message}))
}

func (h *Handler) handleJoin(ctx context.Context, s *Session, payload json.RawMessage) {
	conversationID, err := decodeConversationID(payload)
	if err != nil || conversationID == "" {
		h.sendError(s, "invalid conversation")
		return
	}
	if err := h.room.Join(ctx, s, conversationID); err != nil {
		h.logger.Error("ws: join failed", slog.Any("err", err))
		h.sendError(s, "could not join conversation")
	}
}

func (h *Handler) handleLeave(s *Session, payload json.RawMessage) {
	conversationID, err := decodeConversationID(payload)
	if err != nil || conversationID == "" {
		return
	}
	h.room.Leave(s, conversationID)
}

func (h *Handler) handleSend(ctx context.Context, s *Session, payload json.RawMessage) {
	var p messageSendPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(s, "malformed message")
		return
	}

	_, err := h.lifecycle.Send(ctx, s.userID, p.ConversationID, p.Content, p.MessageType, p.ClientTempID)
	if err != nil {
		h.handleLifecycleErr(s, err)
	}
}

func (h *Handler) handleTyping(s *Session, eventName string, payload json.RawMessage) {
	var p messageTypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	isTyping := p.IsTyping
	if eventName == "typing:start" {
		isTyping = true
	} else if eventName == "typing:stop" {
		isTyping = false
	}
	h.typing.Heartbeat(p.ConversationID, s.userID, s.username, s.handle, isTyping)
}

func (h *Handler) handleRead(ctx context.Context, s *Session, payload json.RawMessage) {
	var p messageReadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.sendError(s, "malformed read receipt")
		return
	}
	if err := h.lifecycle.Read(ctx, s.userID, p.ConversationID, p.MessageID); err != nil {
		h.handleLifecycleErr(s, err)
	}
}

func (h *Handler) handleBulkRead(ctx context.Context, s *Session, payload json.RawMessage) {
	conversationID, err := decodeConversationID(payload)
	if err != nil || conversationID == "" {
		h.sendError(s, "invalid conversation")
		return
	}
	if err := h.lifecycle.BulkRead(ctx, s.userID, conversationID); err != nil {
		h.handleLifecycleErr(s, err)
	}
}

// handleLifecycleErr maps spec §7's error kinds to a generic message:error,
// logging StoreFatal at error level as the spec requires.
func (h *Handler) handleLifecycleErr(s *Session, err error) {
	var lerr *lifecycle.Error
	if !errors.As(err, &lerr) {
		h.logger.Error("ws: unclassified lifecycle error", slog.Any("err", err))
		h.sendError(s, "request failed")
		return
	}

	switch lerr.Kind {
	case lifecycle.KindStoreFatal:
		h.logger.Error("ws: store fatal error", slog.Any("err", lerr))
	case lifecycle.KindStoreTransient:
		h.logger.Warn("ws: store transient error", slog.Any("err", lerr))
	default:
		h.logger.Debug("ws: rejected client event", slog.String("kind", lerr.Kind.String()), slog.Any("err", lerr))
	}
	h.sendError(s, "request failed")
}
