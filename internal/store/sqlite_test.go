package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/webitel/chat-core/internal/domain/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat-core-test.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFindOrCreateConversationIsIdempotentAndOrderInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.FindOrCreateConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	second, err := s.FindOrCreateConversation(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("find reversed pair: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same conversation regardless of participant order, got %s vs %s", first.ID, second.ID)
	}
}

func TestFindOrCreateConversationRejectsSelfPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindOrCreateConversation(ctx, "alice", "alice"); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("expected ErrSelfConversation, got %v", err)
	}
}

func TestSendMessageBumpsUnreadAndLastMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	msg := &model.Message{
		ID:             "m1",
		ConversationID: conv.ID,
		SenderID:       "alice",
		Content:        "hello",
		Type:           model.MessageTypeText,
		Status:         model.MessageStatusSent,
		ReadBy:         model.NewReadBySet(),
		CreatedAt:      time.Now(),
	}

	updated, err := s.SendMessage(ctx, msg, "bob")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if updated.UnreadCount["bob"] != 1 {
		t.Fatalf("expected bob's unread count to be 1, got %d", updated.UnreadCount["bob"])
	}
	if updated.LastMessageID != "m1" {
		t.Fatalf("expected last message id m1, got %s", updated.LastMessageID)
	}
}

func TestTransitionDeliveredThenReadIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	msg := &model.Message{
		ID: "m1", ConversationID: conv.ID, SenderID: "alice", Content: "hi",
		Type: model.MessageTypeText, Status: model.MessageStatusSent,
		ReadBy: model.NewReadBySet(), CreatedAt: time.Now(),
	}
	if _, err := s.SendMessage(ctx, msg, "bob"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	ok, err := s.TransitionDelivered(ctx, "m1", time.Now())
	if err != nil || !ok {
		t.Fatalf("TransitionDelivered: ok=%v err=%v", ok, err)
	}

	updatedMsg, updatedConv, err := s.TransitionRead(ctx, "m1", "bob", time.Now())
	if err != nil {
		t.Fatalf("TransitionRead: %v", err)
	}
	if updatedMsg.Status != model.MessageStatusRead {
		t.Fatalf("expected status read, got %s", updatedMsg.Status)
	}
	if updatedConv.UnreadCount["bob"] != 0 {
		t.Fatalf("expected unread count cleared, got %d", updatedConv.UnreadCount["bob"])
	}

	// A second delivered transition after read must be rejected: read is
	// terminal and delivered must never move the status backwards.
	ok, err = s.TransitionDelivered(ctx, "m1", time.Now())
	if err != nil {
		t.Fatalf("TransitionDelivered after read: %v", err)
	}
	if ok {
		t.Fatal("expected TransitionDelivered to be a no-op once a message is already read")
	}

	// A second read for the same (message, reader) must be idempotent:
	// readAt must not move and the unread counter must not go negative.
	firstReadAt := *updatedMsg.ReadAt
	againMsg, againConv, err := s.TransitionRead(ctx, "m1", "bob", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("TransitionRead (second time): %v", err)
	}
	if !againMsg.ReadAt.Equal(firstReadAt) {
		t.Fatalf("expected readAt to stay %v, got %v", firstReadAt, *againMsg.ReadAt)
	}
	if againConv.UnreadCount["bob"] != 0 {
		t.Fatalf("expected unread count to remain 0, got %d", againConv.UnreadCount["bob"])
	}
}

func TestFindPendingInboundReturnsOnlyUndeliveredMessagesAddressedToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.FindOrCreateConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	msg := &model.Message{
		ID: "m1", ConversationID: conv.ID, SenderID: "alice", Content: "hi",
		Type: model.MessageTypeText, Status: model.MessageStatusSent,
		ReadBy: model.NewReadBySet(), CreatedAt: time.Now(),
	}
	if _, err := s.SendMessage(ctx, msg, "bob"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	pending, err := s.FindPendingInbound(ctx, "bob")
	if err != nil {
		t.Fatalf("FindPendingInbound: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "m1" {
		t.Fatalf("expected exactly m1 pending for bob, got %+v", pending)
	}

	alicePending, err := s.FindPendingInbound(ctx, "alice")
	if err != nil {
		t.Fatalf("FindPendingInbound for sender: %v", err)
	}
	if len(alicePending) != 0 {
		t.Fatalf("sender should never see their own message as pending inbound, got %+v", alicePending)
	}
}
