package room

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/model"
)

type fakeSession struct {
	handle   model.SessionHandle
	userID   string
	received []event.Envelope
}

func (s *fakeSession) Handle() model.SessionHandle { return s.handle }
func (s *fakeSession) UserID() string              { return s.userID }
func (s *fakeSession) Deliver(e event.Envelope) bool {
	s.received = append(s.received, e)
	return true
}
func (s *fakeSession) Close() {}

type fakeConversations struct {
	conversations map[string]*model.Conversation
}

func (f *fakeConversations) FindConversationByID(_ context.Context, id string) (*model.Conversation, error) {
	return f.conversations[id], nil
}

type fakeLocator struct {
	sessions map[string]model.Session
}

func (f *fakeLocator) SessionOf(userID string) (model.Session, bool) {
	s, ok := f.sessions[userID]
	return s, ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJoinRejectsNonParticipant(t *testing.T) {
	convs := &fakeConversations{conversations: map[string]*model.Conversation{
		"conv-1": {ID: "conv-1", ParticipantA: "alice", ParticipantB: "bob"},
	}}
	r := New(convs, &fakeLocator{}, testLogger())

	s := &fakeSession{handle: "h1", userID: "eve"}
	if err := r.Join(context.Background(), s, "conv-1"); err != nil {
		t.Fatalf("Join returned error: %v", err)
	}

	r.EmitToRoom("conv-1", event.New(event.MessageNew, nil), "")
	if len(s.received) != 0 {
		t.Fatalf("rejected joiner should not receive room broadcasts, got %d", len(s.received))
	}
}

func TestJoinAllowsParticipantAndBroadcasts(t *testing.T) {
	convs := &fakeConversations{conversations: map[string]*model.Conversation{
		"conv-1": {ID: "conv-1", ParticipantA: "alice", ParticipantB: "bob"},
	}}
	r := New(convs, &fakeLocator{}, testLogger())

	alice := &fakeSession{handle: "h-alice", userID: "alice"}
	bob := &fakeSession{handle: "h-bob", userID: "bob"}
	if err := r.Join(context.Background(), alice, "conv-1"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if err := r.Join(context.Background(), bob, "conv-1"); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	r.EmitToRoom("conv-1", event.New(event.MessageNew, nil), alice.Handle())
	if len(alice.received) != 0 {
		t.Fatalf("originator should be excepted, got %d events", len(alice.received))
	}
	if len(bob.received) != 1 {
		t.Fatalf("bob should receive exactly one event, got %d", len(bob.received))
	}
}

func TestPurgeSessionRemovesFromEveryRoom(t *testing.T) {
	convs := &fakeConversations{conversations: map[string]*model.Conversation{
		"conv-1": {ID: "conv-1", ParticipantA: "alice", ParticipantB: "bob"},
		"conv-2": {ID: "conv-2", ParticipantA: "alice", ParticipantB: "carol"},
	}}
	r := New(convs, &fakeLocator{}, testLogger())

	alice := &fakeSession{handle: "h-alice", userID: "alice"}
	if err := r.Join(context.Background(), alice, "conv-1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Join(context.Background(), alice, "conv-2"); err != nil {
		t.Fatal(err)
	}

	r.PurgeSession(alice.Handle())

	bob := &fakeSession{handle: "h-bob", userID: "bob"}
	if err := r.Join(context.Background(), bob, "conv-1"); err != nil {
		t.Fatal(err)
	}
	r.EmitToRoom("conv-1", event.New(event.MessageNew, nil), "")
	if len(alice.received) != 0 {
		t.Fatalf("purged session should not receive further broadcasts, got %d", len(alice.received))
	}
	if len(bob.received) != 1 {
		t.Fatalf("bob should still receive the broadcast, got %d", len(bob.received))
	}
}

func TestEmitToUserDeliversOnlyToOnlineSession(t *testing.T) {
	alice := &fakeSession{handle: "h-alice", userID: "alice"}
	locator := &fakeLocator{sessions: map[string]model.Session{"alice": alice}}
	r := New(&fakeConversations{conversations: map[string]*model.Conversation{}}, locator, testLogger())

	r.EmitToUser("alice", event.New(event.ConversationUnreadUpd, nil))
	r.EmitToUser("bob", event.New(event.ConversationUnreadUpd, nil))

	if len(alice.received) != 1 {
		t.Fatalf("expected alice to receive exactly one event, got %d", len(alice.received))
	}
}
