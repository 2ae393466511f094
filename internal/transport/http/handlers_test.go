package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/webitel/chat-core/internal/domain/identitygate"
	"github.com/webitel/chat-core/internal/domain/model"
)

type fakeConversationStore struct {
	conversations map[string]*model.Conversation
}

func (f *fakeConversationStore) FindOrCreateConversation(_ context.Context, a, b string) (*model.Conversation, error) {
	return nil, errors.New("not used by this test")
}

func (f *fakeConversationStore) FindConversationByID(_ context.Context, id string) (*model.Conversation, error) {
	return f.conversations[id], nil
}

func (f *fakeConversationStore) ConversationMessages(context.Context, string, int) ([]*model.Message, error) {
	return nil, nil
}

type fakeUsernames struct {
	names map[string]string
}

func (f *fakeUsernames) FindUsernameByID(_ context.Context, userID string) (string, error) {
	name, ok := f.names[userID]
	if !ok {
		return "", errors.New("unknown user " + userID)
	}
	return name, nil
}

type fakePresence struct {
	online map[string]bool
}

func (f *fakePresence) IsOnline(userID string) bool { return f.online[userID] }

func testHandlers() *Handlers {
	return newHandlers(
		&fakeConversationStore{},
		&fakeUsernames{names: map[string]string{"alice": "Alice", "bob": "Bob"}},
		&fakePresence{online: map[string]bool{"bob": true}},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestEnrichParticipantsResolvesBothSidesConcurrently(t *testing.T) {
	h := testHandlers()
	conv := &model.Conversation{ID: "c1", ParticipantA: "alice", ParticipantB: "bob"}

	participants, err := h.enrichParticipants(context.Background(), conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if participants[0].UserID != "alice" || participants[0].Username != "Alice" || participants[0].IsOnline {
		t.Fatalf("unexpected participant[0]: %+v", participants[0])
	}
	if participants[1].UserID != "bob" || participants[1].Username != "Bob" || !participants[1].IsOnline {
		t.Fatalf("unexpected participant[1]: %+v", participants[1])
	}
}

func TestEnrichParticipantsPropagatesAResolutionFailure(t *testing.T) {
	h := testHandlers()
	conv := &model.Conversation{ID: "c1", ParticipantA: "alice", ParticipantB: "ghost"}

	if _, err := h.enrichParticipants(context.Background(), conv); err == nil {
		t.Fatal("expected an error when a participant's username cannot be resolved")
	}
}

func TestCreateConversationRejectsSelfPair(t *testing.T) {
	h := testHandlers()

	body, _ := json.Marshal(createConversationRequest{ParticipantID: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/conversations", bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), principalKey{}, identitygate.Principal{UserID: "alice"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	h.CreateConversation(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a self-pair request, got %d", rec.Code)
	}
}

func TestToConversationResponseDegradesGracefullyWithoutParticipants(t *testing.T) {
	h := testHandlers()
	conv := &model.Conversation{ID: "c1", ParticipantA: "alice", ParticipantB: "ghost", UnreadCount: map[string]int{}}

	resp := h.toConversationResponse(context.Background(), conv)
	if resp.ID != "c1" {
		t.Fatalf("expected base conversation fields to still populate, got %+v", resp)
	}
}
