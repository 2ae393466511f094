package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/model"
)

// fakeStore is a minimal in-memory Store for exercising the engine without
// a real Store Adapter.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	messages      map[string]*model.Message
	usernames     map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string]*model.Message),
		usernames:     make(map[string]string),
	}
}

func (s *fakeStore) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[id], nil
}

func (s *fakeStore) FindOrCreateConversation(ctx context.Context, a, b string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if (c.ParticipantA == a && c.ParticipantB == b) || (c.ParticipantA == b && c.ParticipantB == a) {
			return c, nil
		}
	}
	c := &model.Conversation{ID: "conv-" + a + "-" + b, ParticipantA: a, ParticipantB: b, UnreadCount: map[string]int{}}
	s.conversations[c.ID] = c
	return c, nil
}

func (s *fakeStore) FindUsernameByID(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usernames[userID], nil
}

func (s *fakeStore) SendMessage(ctx context.Context, msg *model.Message, recipientID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg
	conv := s.conversations[msg.ConversationID]
	conv.LastMessageID = msg.ID
	conv.LastMessageContent = msg.Content
	conv.UnreadCount[recipientID]++
	return conv, nil
}

func (s *fakeStore) FindMessageByID(ctx context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id], nil
}

func (s *fakeStore) TransitionDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.messages[id]
	if msg == nil || !msg.CanAdvanceTo(model.MessageStatusDelivered) {
		return false, nil
	}
	msg.Status = model.MessageStatusDelivered
	msg.DeliveredAt = &at
	return true, nil
}

func (s *fakeStore) TransitionRead(ctx context.Context, id, readerID string, at time.Time) (*model.Message, *model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.messages[id]
	if msg.DeliveredAt == nil {
		msg.DeliveredAt = &at
	}
	msg.Status = model.MessageStatusRead
	msg.IsRead = true
	msg.ReadAt = &at
	msg.ReadBy[readerID] = struct{}{}
	conv := s.conversations[msg.ConversationID]
	if conv.UnreadCount[readerID] > 0 {
		conv.UnreadCount[readerID]--
	}
	return msg, conv, nil
}

func (s *fakeStore) BulkTransitionRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]*model.Message, *model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected []*model.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID && msg.SenderID != readerID && msg.Status != model.MessageStatusRead {
			msg.Status = model.MessageStatusRead
			msg.IsRead = true
			msg.ReadAt = &at
			msg.ReadBy[readerID] = struct{}{}
			affected = append(affected, msg)
		}
	}
	conv := s.conversations[conversationID]
	conv.UnreadCount[readerID] = 0
	return affected, conv, nil
}

func (s *fakeStore) FindPendingInbound(ctx context.Context, userID string) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*model.Message
	for _, msg := range s.messages {
		if msg.SenderID != userID && msg.Status == model.MessageStatusSent {
			conv := s.conversations[msg.ConversationID]
			if conv != nil && conv.HasParticipant(userID) {
				pending = append(pending, msg)
			}
		}
	}
	return pending, nil
}

func (s *fakeStore) BulkTransitionDelivered(ctx context.Context, ids []string, at time.Time) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated []*model.Message
	for _, id := range ids {
		msg := s.messages[id]
		if msg != nil && msg.CanAdvanceTo(model.MessageStatusDelivered) {
			msg.Status = model.MessageStatusDelivered
			msg.DeliveredAt = &at
			updated = append(updated, msg)
		}
	}
	return updated, nil
}

type fakeRoom struct {
	mu   sync.Mutex
	sent []event.Envelope
}

func (r *fakeRoom) EmitToRoom(conversationID string, e event.Envelope, except model.SessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, e)
}

func (r *fakeRoom) EmitToUser(userID string, e event.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, e)
}

func (r *fakeRoom) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fakePresence struct {
	online map[string]bool
}

func (p *fakePresence) IsOnline(userID string) bool { return p.online[userID] }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupEngine(recipientOnline bool) (*Engine, *fakeStore, *fakeRoom, *model.Conversation) {
	store := newFakeStore()
	room := &fakeRoom{}
	presence := &fakePresence{online: map[string]bool{"bob": recipientOnline}}
	conv := &model.Conversation{ID: "conv1", ParticipantA: "alice", ParticipantB: "bob", UnreadCount: map[string]int{}}
	store.conversations[conv.ID] = conv
	e := New(store, room, presence, testLogger(), WithDeliverDelay(20*time.Millisecond))
	return e, store, room, conv
}

func TestSendHappyPath(t *testing.T) {
	e, _, room, _ := setupEngine(true)

	msg, err := e.Send(context.Background(), "alice", "conv1", "hello", model.MessageTypeText, "tmp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Status != model.MessageStatusSent {
		t.Fatalf("expected sent status, got %s", msg.Status)
	}
	// message:new to room, message:sent to sender, conversation:unreadUpdate to recipient
	if room.count() != 3 {
		t.Fatalf("expected 3 emissions, got %d", room.count())
	}
}

func TestSendRejectsNonParticipant(t *testing.T) {
	e, _, _, _ := setupEngine(true)

	_, err := e.Send(context.Background(), "eve", "conv1", "hi", model.MessageTypeText, "")
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindNotParticipant {
		t.Fatalf("expected KindNotParticipant, got %v", err)
	}
}

func TestSendRejectsEmptyContent(t *testing.T) {
	e, _, _, _ := setupEngine(true)

	_, err := e.Send(context.Background(), "alice", "conv1", "   ", model.MessageTypeText, "")
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindValidation {
		t.Fatalf("expected KindValidation, got %v", err)
	}
}

func TestDeliveredTransitionFiresWhenRecipientOnline(t *testing.T) {
	e, store, room, _ := setupEngine(true)

	msg, err := e.Send(context.Background(), "alice", "conv1", "hello", model.MessageTypeText, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	stored, _ := store.FindMessageByID(context.Background(), msg.ID)
	if stored.Status != model.MessageStatusDelivered {
		t.Fatalf("expected delivered, got %s", stored.Status)
	}
	if room.count() != 4 { // new, sent, unreadUpdate, status:delivered
		t.Fatalf("expected 4 emissions, got %d", room.count())
	}
}

func TestReadCancelsPendingDeliveredAndDecrementsUnread(t *testing.T) {
	e, store, _, conv := setupEngine(true)

	msg, err := e.Send(context.Background(), "alice", "conv1", "hello", model.MessageTypeText, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.Read(context.Background(), "bob", "conv1", msg.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := store.FindMessageByID(context.Background(), msg.ID)
	if stored.Status != model.MessageStatusRead {
		t.Fatalf("expected read, got %s", stored.Status)
	}
	if !stored.HasRead("bob") {
		t.Fatalf("expected bob recorded in readBy")
	}
	if conv.UnreadCount["bob"] != 0 {
		t.Fatalf("expected unread count zeroed, got %d", conv.UnreadCount["bob"])
	}

	// the delivered timer should not fire after read superseded it.
	time.Sleep(60 * time.Millisecond)
	stored, _ = store.FindMessageByID(context.Background(), msg.ID)
	if stored.Status != model.MessageStatusRead {
		t.Fatalf("expected status to remain read, got %s", stored.Status)
	}
}

func TestSenderCannotReadOwnMessage(t *testing.T) {
	e, _, _, _ := setupEngine(true)

	msg, err := e.Send(context.Background(), "alice", "conv1", "hello", model.MessageTypeText, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = e.Read(context.Background(), "alice", "conv1", msg.ID)
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindNotParticipant {
		t.Fatalf("expected KindNotParticipant, got %v", err)
	}
}

func TestSecondReadOfSameMessageIsANoOp(t *testing.T) {
	e, store, room, conv := setupEngine(true)

	msg, err := e.Send(context.Background(), "alice", "conv1", "hello", model.MessageTypeText, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := e.Read(context.Background(), "bob", "conv1", msg.ID); err != nil {
		t.Fatalf("first read: %v", err)
	}
	stored, _ := store.FindMessageByID(context.Background(), msg.ID)
	firstReadAt := *stored.ReadAt
	emissionsAfterFirstRead := room.count()

	// A second message:read for the same (message, reader) must be a no-op
	// (spec §4.5): no re-emission, no moved readAt, no further unread
	// decrement (which would otherwise go negative).
	if err := e.Read(context.Background(), "bob", "conv1", msg.ID); err != nil {
		t.Fatalf("second read: %v", err)
	}

	stored, _ = store.FindMessageByID(context.Background(), msg.ID)
	if !stored.ReadAt.Equal(firstReadAt) {
		t.Fatalf("expected readAt to stay %v, got %v", firstReadAt, *stored.ReadAt)
	}
	if conv.UnreadCount["bob"] != 0 {
		t.Fatalf("expected unread count to remain 0, got %d", conv.UnreadCount["bob"])
	}
	if room.count() != emissionsAfterFirstRead {
		t.Fatalf("expected no additional emissions on the second read, got %d more",
			room.count()-emissionsAfterFirstRead)
	}
}

func TestOnConnectBulkDeliversPending(t *testing.T) {
	e, _, room, _ := setupEngine(false) // recipient offline at send time

	msg, err := e.Send(context.Background(), "alice", "conv1", "hello", model.MessageTypeText, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := room.count()
	if err := e.OnConnect(context.Background(), "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if room.count() != before+1 {
		t.Fatalf("expected exactly one additional status emission, got %d", room.count()-before)
	}
	_ = msg
}
