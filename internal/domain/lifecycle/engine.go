// Package lifecycle implements spec §4.5: the Message Lifecycle Engine, the
// core send/deliver/read state machine coordinated with presence, unread
// counters, and durable storage. Grounded on the teacher's service-layer
// orchestration style (internal/service, now rewritten for this domain)
// with the deferred-timer idiom carried from its own scheduled-retry
// handling.
package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/model"
)

const (
	defaultDeliverDelay    = time.Second
	defaultMaxRetries      = 3
	defaultRetryBackoff    = 50 * time.Millisecond
	defaultMaxContentRunes = 4000
)

// RoomEmitter is the narrow room.Router slice the engine needs to fan out
// lifecycle events without importing the room package directly.
type RoomEmitter interface {
	EmitToRoom(conversationID string, e event.Envelope, except model.SessionHandle)
	EmitToUser(userID string, e event.Envelope)
}

// PresenceChecker is the narrow presence.Registry slice the engine needs to
// decide whether a delivered transition should be scheduled at all.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

// Publisher is the narrow eventbus.Bus slice used to fire audit events for
// every lifecycle transition. Best-effort: a publish failure never affects
// the transition it describes.
type Publisher interface {
	Publish(topic string, payload []byte)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, []byte) {}

// Audit topic names, mirrored in internal/eventbus's own constants so a
// subscriber there can bind to these without this package importing it.
const (
	topicMessageSent      = "message.sent"
	topicMessageDelivered = "message.delivered"
	topicMessageRead      = "message.read"
)

type auditEvent struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Status         string    `json:"status"`
	At             time.Time `json:"at"`
}

func (e *Engine) publishAudit(topic string, ev auditEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	e.publisher.Publish(topic, payload)
}

type pendingDelivered struct {
	timer       *time.Timer
	senderID    string
	recipientID string
}

// Engine is the Message Lifecycle Engine.
type Engine struct {
	store     Store
	room      RoomEmitter
	presence  PresenceChecker
	publisher Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingDelivered // messageID -> scheduled delivered transition

	deliverDelay    atomic.Int64 // nanoseconds; hot-reloadable via SetTunables
	maxRetries      int
	retryBackoff    time.Duration
	maxContentRunes atomic.Int32 // hot-reloadable via SetTunables
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithDeliverDelay overrides the deferred delivered-transition delay.
func WithDeliverDelay(d time.Duration) Option {
	return func(e *Engine) { e.deliverDelay.Store(int64(d)) }
}

// WithMaxContentRunes overrides the maximum accepted message length.
func WithMaxContentRunes(n int) Option {
	return func(e *Engine) { e.maxContentRunes.Store(int32(n)) }
}

// SetTunables applies spec §5's hot-reloadable timing knobs at runtime,
// the Lifecycle half of config.WatchLifecycle's fsnotify-driven reload.
func (e *Engine) SetTunables(deliverDelay time.Duration, maxContentRunes int) {
	e.deliverDelay.Store(int64(deliverDelay))
	e.maxContentRunes.Store(int32(maxContentRunes))
}

// WithPublisher attaches an audit-event publisher. Engines built without
// one (e.g. in tests) fall back to a no-op.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// New builds an Engine.
func New(store Store, room RoomEmitter, presence PresenceChecker, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		room:         room,
		presence:     presence,
		publisher:    noopPublisher{},
		logger:       logger,
		pending:      make(map[string]*pendingDelivered),
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
	e.deliverDelay.Store(int64(defaultDeliverDelay))
	e.maxContentRunes.Store(int32(defaultMaxContentRunes))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Send implements spec §4.5's send operation.
func (e *Engine) Send(ctx context.Context, senderID, conversationID, content string, msgType model.MessageType, clientTempID string) (*model.Message, error) {
	conv, err := e.store.FindConversationByID(ctx, conversationID)
	if err != nil {
		return nil, newError(classifyStoreErr(err), err)
	}
	if conv == nil {
		return nil, newError(KindValidation, ErrConversationNotFound)
	}
	if !conv.HasParticipant(senderID) {
		return nil, newError(KindNotParticipant, ErrNotParticipant)
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, newError(KindValidation, ErrEmptyContent)
	}
	if utf8.RuneCountInString(trimmed) > int(e.maxContentRunes.Load()) {
		return nil, newError(KindValidation, ErrContentTooLong)
	}
	if msgType == "" {
		msgType = model.MessageTypeText
	}

	recipientID := conv.OtherParticipant(senderID)

	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        trimmed,
		Type:           msgType,
		Status:         model.MessageStatusSent,
		ReadBy:         model.NewReadBySet(),
		CreatedAt:      time.Now(),
		ClientTempID:   clientTempID,
	}

	updatedConv, err := e.sendWithRetry(ctx, msg, recipientID)
	if err != nil {
		return nil, err
	}

	senderUsername, err := e.store.FindUsernameByID(ctx, senderID)
	if err != nil {
		e.logger.Warn("lifecycle: could not resolve sender username for fan-out",
			slog.String("user_id", senderID), slog.Any("err", err))
	}

	e.emitNewAndSent(msg, senderUsername)
	e.emitUnreadUpdate(conversationID, recipientID, updatedConv, senderID, senderUsername, "")
	e.publishAudit(topicMessageSent, auditEvent{
		MessageID: msg.ID, ConversationID: conversationID, SenderID: senderID,
		Status: string(msg.Status), At: msg.CreatedAt,
	})

	if e.presence.IsOnline(recipientID) {
		e.scheduleDelivered(msg.ID, conversationID, senderID, recipientID)
	}

	return msg, nil
}

// sendWithRetry persists msg, retrying with bounded backoff on a classified
// transient error (spec §4.5 step 2: "retries on serialization conflict are
// expected").
func (e *Engine) sendWithRetry(ctx context.Context, msg *model.Message, recipientID string) (*model.Conversation, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		conv, err := e.store.SendMessage(ctx, msg, recipientID)
		if err == nil {
			return conv, nil
		}
		lastErr = err
		if classifyStoreErr(err) != KindStoreTransient {
			return nil, newError(KindStoreFatal, err)
		}
		select {
		case <-ctx.Done():
			return nil, newError(KindStoreTransient, ctx.Err())
		case <-time.After(e.retryBackoff * time.Duration(attempt+1)):
		}
	}
	return nil, newError(KindStoreTransient, lastErr)
}

func (e *Engine) emitNewAndSent(msg *model.Message, senderUsername string) {
	payload := event.MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         event.MessageSender{ID: msg.SenderID, Username: senderUsername},
		Content:        msg.Content,
		Type:           string(msg.Type),
		Status:         string(msg.Status),
		IsRead:         msg.IsRead,
		DeliveredAt:    msg.DeliveredAt,
		ReadAt:         msg.ReadAt,
		CreatedAt:      msg.CreatedAt,
		ClientTempID:   msg.ClientTempID,
	}
	e.room.EmitToRoom(msg.ConversationID, event.New(event.MessageNew, payload), "")
	e.room.EmitToUser(msg.SenderID, event.New(event.MessageSent, event.MessageSentPayload{
		MessageID:      msg.ID,
		Status:         string(msg.Status),
		ConversationID: msg.ConversationID,
		ClientTempID:   msg.ClientTempID,
	}))
}

func (e *Engine) emitUnreadUpdate(conversationID, recipientID string, conv *model.Conversation, senderID, senderUsername, action string) {
	unread := 0
	if conv != nil {
		unread = conv.UnreadCount[recipientID]
	}
	e.room.EmitToUser(recipientID, event.New(event.ConversationUnreadUpd, event.ConversationUnreadUpdatePayload{
		ConversationID: conversationID,
		UnreadCount:    unread,
		SenderID:       senderID,
		SenderUsername: senderUsername,
		Action:         action,
	}))
}

// scheduleDelivered arms the deferred delivered transition for messageID
// (spec §4.5 step 6, §5 cancellation rules).
func (e *Engine) scheduleDelivered(messageID, conversationID, senderID, recipientID string) {
	pd := &pendingDelivered{senderID: senderID, recipientID: recipientID}
	pd.timer = time.AfterFunc(time.Duration(e.deliverDelay.Load()), func() {
		e.mu.Lock()
		delete(e.pending, messageID)
		e.mu.Unlock()
		e.fireDelivered(messageID, conversationID)
	})

	e.mu.Lock()
	e.pending[messageID] = pd
	e.mu.Unlock()
}

// cancelPending stops and forgets messageID's scheduled delivered
// transition, if any. Safe to call even when none exists (e.g. the
// recipient was offline at send time, or it already fired).
func (e *Engine) cancelPending(messageID string) {
	e.mu.Lock()
	pd, ok := e.pending[messageID]
	if ok {
		delete(e.pending, messageID)
	}
	e.mu.Unlock()
	if ok {
		pd.timer.Stop()
	}
}

// OnSessionDisconnect cancels delivered transitions scheduled for userID's
// own sends whose recipient has also gone offline in the interval (spec
// §5: "cancel its own scheduled transitions ... only if the recipient has
// gone offline during the interval, otherwise let them fire"). Messages
// whose recipient is still online keep their timer — the recipient already
// received the room broadcast and a delivered ack is still meaningful.
func (e *Engine) OnSessionDisconnect(userID string) {
	e.mu.Lock()
	var toStop []*time.Timer
	for id, pd := range e.pending {
		if pd.senderID == userID && !e.presence.IsOnline(pd.recipientID) {
			toStop = append(toStop, pd.timer)
			delete(e.pending, id)
		}
	}
	e.mu.Unlock()

	for _, t := range toStop {
		t.Stop()
	}
}

// fireDelivered runs the scheduled delivered transition against a detached
// context, since it is not bound to any single connection's lifetime.
func (e *Engine) fireDelivered(messageID, conversationID string) {
	ctx := context.Background()

	ok, err := e.store.TransitionDelivered(ctx, messageID, time.Now())
	if err != nil {
		e.logger.Error("lifecycle: delivered transition failed",
			slog.String("message_id", messageID), slog.Any("err", err))
		return
	}
	if !ok {
		return // already advanced past sent; the read transition supersedes
	}

	msg, err := e.store.FindMessageByID(ctx, messageID)
	if err != nil || msg == nil {
		e.logger.Error("lifecycle: could not reload message after delivered transition",
			slog.String("message_id", messageID), slog.Any("err", err))
		return
	}

	e.room.EmitToUser(msg.SenderID, event.New(event.MessageStatus, event.MessageStatusPayload{
		MessageID:      msg.ID,
		Status:         string(msg.Status),
		ConversationID: conversationID,
	}))
	e.publishAudit(topicMessageDelivered, auditEvent{
		MessageID: msg.ID, ConversationID: conversationID, SenderID: msg.SenderID,
		Status: string(msg.Status), At: time.Now(),
	})
}

// OnConnect implements spec §4.5's "On recipient connect" bulk catch-up:
// every pending inbound message addressed to userID is marked delivered in
// bulk, then acknowledged to each original sender individually.
func (e *Engine) OnConnect(ctx context.Context, userID string) error {
	pending, err := e.store.FindPendingInbound(ctx, userID)
	if err != nil {
		return newError(classifyStoreErr(err), err)
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, len(pending))
	for i, msg := range pending {
		ids[i] = msg.ID
	}

	updated, err := e.store.BulkTransitionDelivered(ctx, ids, time.Now())
	if err != nil {
		return newError(classifyStoreErr(err), err)
	}

	for _, msg := range updated {
		e.cancelPending(msg.ID)
		e.room.EmitToUser(msg.SenderID, event.New(event.MessageStatus, event.MessageStatusPayload{
			MessageID:      msg.ID,
			Status:         string(msg.Status),
			ConversationID: msg.ConversationID,
		}))
	}
	return nil
}

// Read implements spec §4.5's read operation.
func (e *Engine) Read(ctx context.Context, readerID, conversationID, messageID string) error {
	conv, err := e.store.FindConversationByID(ctx, conversationID)
	if err != nil {
		return newError(classifyStoreErr(err), err)
	}
	if conv == nil {
		return newError(KindValidation, ErrConversationNotFound)
	}
	if !conv.HasParticipant(readerID) {
		return newError(KindNotParticipant, ErrNotParticipant)
	}

	msg, err := e.store.FindMessageByID(ctx, messageID)
	if err != nil {
		return newError(classifyStoreErr(err), err)
	}
	if msg == nil {
		return newError(KindValidation, ErrMessageNotFound)
	}
	if msg.SenderID == readerID {
		return newError(KindNotParticipant, ErrSenderCannotReadOwnMessage)
	}
	if !msg.CanAdvanceTo(model.MessageStatusRead) {
		return nil // already read: spec §4.5 "a read on an already-read message is a no-op"
	}

	e.cancelPending(messageID)

	updatedMsg, updatedConv, err := e.store.TransitionRead(ctx, messageID, readerID, time.Now())
	if err != nil {
		return newError(classifyStoreErr(err), err)
	}

	e.emitReadStatus(updatedMsg, updatedConv, readerID)
	return nil
}

// BulkRead implements spec §4.5's bulk read operation.
func (e *Engine) BulkRead(ctx context.Context, readerID, conversationID string) error {
	conv, err := e.store.FindConversationByID(ctx, conversationID)
	if err != nil {
		return newError(classifyStoreErr(err), err)
	}
	if conv == nil {
		return newError(KindValidation, ErrConversationNotFound)
	}
	if !conv.HasParticipant(readerID) {
		return newError(KindNotParticipant, ErrNotParticipant)
	}

	messages, updatedConv, err := e.store.BulkTransitionRead(ctx, conversationID, readerID, time.Now())
	if err != nil {
		return newError(classifyStoreErr(err), err)
	}

	for _, msg := range messages {
		e.cancelPending(msg.ID)
		e.emitReadStatusToRoom(msg)
		e.publishAudit(topicMessageRead, auditEvent{
			MessageID: msg.ID, ConversationID: msg.ConversationID, SenderID: msg.SenderID,
			Status: string(msg.Status), At: time.Now(),
		})
	}
	e.emitUnreadToParticipants(updatedConv, readerID, "markAllRead")
	return nil
}

func (e *Engine) emitReadStatus(msg *model.Message, conv *model.Conversation, readerID string) {
	e.emitReadStatusToRoom(msg)
	e.emitUnreadToParticipants(conv, readerID, "")
	e.publishAudit(topicMessageRead, auditEvent{
		MessageID: msg.ID, ConversationID: msg.ConversationID, SenderID: msg.SenderID,
		Status: string(msg.Status), At: time.Now(),
	})
}

func (e *Engine) emitReadStatusToRoom(msg *model.Message) {
	readBy := make([]string, 0, len(msg.ReadBy))
	for userID := range msg.ReadBy {
		readBy = append(readBy, userID)
	}
	e.room.EmitToRoom(msg.ConversationID, event.New(event.MessageStatus, event.MessageStatusPayload{
		MessageID:      msg.ID,
		Status:         string(msg.Status),
		ConversationID: msg.ConversationID,
		ReadBy:         readBy,
		ReadAt:         msg.ReadAt,
	}), "")
}

func (e *Engine) emitUnreadToParticipants(conv *model.Conversation, updatedBy, action string) {
	if conv == nil {
		return
	}
	for _, participant := range [2]string{conv.ParticipantA, conv.ParticipantB} {
		e.room.EmitToUser(participant, event.New(event.ConversationUnreadUpd, event.ConversationUnreadUpdatePayload{
			ConversationID: conv.ID,
			UnreadCount:    conv.UnreadCount[participant],
			UpdatedBy:      updatedBy,
			Action:         action,
		}))
	}
}
