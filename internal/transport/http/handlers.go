package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/webitel/chat-core/internal/domain/model"
)

const defaultHistoryLimit = 50

// ConversationStore is the narrow slice of the Store Adapter the REST
// companion endpoints need.
type ConversationStore interface {
	FindOrCreateConversation(ctx context.Context, participantA, participantB string) (*model.Conversation, error)
	FindConversationByID(ctx context.Context, conversationID string) (*model.Conversation, error)
	ConversationMessages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)
}

// UsernameResolver is the narrow slice of the Store Adapter needed to
// expand a participant id into its display name.
type UsernameResolver interface {
	FindUsernameByID(ctx context.Context, userID string) (string, error)
}

// PresenceChecker is the narrow slice of the Presence Registry needed to
// report whether a participant currently has an active session.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

// Handlers holds the REST companion endpoints.
type Handlers struct {
	store     ConversationStore
	usernames UsernameResolver
	presence  PresenceChecker
	logger    *slog.Logger
}

func newHandlers(store ConversationStore, usernames UsernameResolver, presence PresenceChecker, logger *slog.Logger) *Handlers {
	return &Handlers{store: store, usernames: usernames, presence: presence, logger: logger}
}

// participantSummary is the {id, username, isOnline} view of one side of a
// conversation returned alongside it.
type participantSummary struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

// enrichParticipants resolves both participants' usernames concurrently via
// errgroup, grounded on the teacher's PeerEnricher.ResolvePeers fan-out:
// each side's Store round-trip runs in its own goroutine rather than
// serially, and IsOnline is read locally once the username comes back.
func (h *Handlers) enrichParticipants(ctx context.Context, conv *model.Conversation) ([2]participantSummary, error) {
	ids := [2]string{conv.ParticipantA, conv.ParticipantB}
	var out [2]participantSummary

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			username, err := h.usernames.FindUsernameByID(gctx, id)
			if err != nil {
				return err
			}
			out[i] = participantSummary{UserID: id, Username: username, IsOnline: h.presence.IsOnline(id)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

type createConversationRequest struct {
	ParticipantID string `json:"participantId"`
}

type conversationResponse struct {
	ID              string                `json:"id"`
	ParticipantA    string                `json:"participantA"`
	ParticipantB    string                `json:"participantB"`
	Participants    [2]participantSummary `json:"participants"`
	LastMessageID   string                `json:"lastMessageId,omitempty"`
	LastMessageBody string                `json:"lastMessageContent,omitempty"`
	UnreadCount     map[string]int        `json:"unreadCount"`
}

func (h *Handlers) toConversationResponse(ctx context.Context, c *model.Conversation) conversationResponse {
	resp := conversationResponse{
		ID:              c.ID,
		ParticipantA:    c.ParticipantA,
		ParticipantB:    c.ParticipantB,
		LastMessageID:   c.LastMessageID,
		LastMessageBody: c.LastMessageContent,
		UnreadCount:     c.UnreadCount,
	}
	participants, err := h.enrichParticipants(ctx, c)
	if err != nil {
		h.logger.Warn("http: participant enrichment failed", slog.Any("err", err))
		return resp
	}
	resp.Participants = participants
	return resp
}

// CreateConversation implements spec §6's conversation bootstrap endpoint:
// POST /conversations {participantId} finds or creates the 1:1 conversation
// between the caller and the named participant.
func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParticipantID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ParticipantID == principal.UserID {
		http.Error(w, "cannot create a conversation with yourself", http.StatusBadRequest)
		return
	}

	conv, err := h.store.FindOrCreateConversation(r.Context(), principal.UserID, req.ParticipantID)
	if err != nil {
		h.logger.Error("http: create conversation failed", slog.Any("err", err))
		http.Error(w, "could not create conversation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, h.toConversationResponse(r.Context(), conv))
}

type messageResponse struct {
	ID           string `json:"id"`
	SenderID     string `json:"senderId"`
	Content      string `json:"content"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt"`
	ClientTempID string `json:"clientTempId,omitempty"`
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:           m.ID,
		SenderID:     m.SenderID,
		Content:      m.Content,
		Type:         string(m.Type),
		Status:       string(m.Status),
		CreatedAt:    m.CreatedAt.Format(http.TimeFormat),
		ClientTempID: m.ClientTempID,
	}
}

// Messages implements spec §6's GET /conversations/:id/messages, returning
// the newest-first page of message history a reconnecting client replays
// before catching up on the realtime channel.
func (h *Handlers) Messages(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := chi.URLParam(r, "id")
	conv, err := h.store.FindConversationByID(r.Context(), conversationID)
	if err != nil || conv == nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if conv.ParticipantA != principal.UserID && conv.ParticipantB != principal.UserID {
		http.Error(w, "not a participant", http.StatusForbidden)
		return
	}

	limit := defaultHistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := h.store.ConversationMessages(r.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("http: fetch message history failed", slog.Any("err", err))
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}

	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
