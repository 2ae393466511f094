// Package room implements spec §4.3: the per-conversation fan-out layer.
// Grounded on the teacher's registry shard/lock discipline
// (internal/domain/registry/hub.go) plus the conversation-indexed broadcast
// found in the pack's multi-room chat examples; this adds the dual index
// (conversation -> sessions, session -> conversations) the spec calls for
// so a disconnect can purge a session from every room it was in without
// scanning every conversation.
package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/model"
)

// ConversationStore is the narrow slice of the Store Adapter the Router
// needs to enforce the membership check spec §9 recommends adding.
type ConversationStore interface {
	FindConversationByID(ctx context.Context, conversationID string) (*model.Conversation, error)
}

// UserLocator resolves a user's current session for emitToUser, delegating
// to the Presence Registry rather than duplicating its index.
type UserLocator interface {
	SessionOf(userID string) (model.Session, bool)
}

// Router is the Room Router. mu guards both indices together so join/leave
// update them atomically (spec §4.3's "Both must be updated atomically").
type Router struct {
	mu           sync.RWMutex
	roomSessions map[string]map[model.SessionHandle]model.Session
	sessionRooms map[model.SessionHandle]map[string]struct{}

	conversations ConversationStore
	presence      UserLocator
	logger        *slog.Logger
}

// New builds a Router.
func New(conversations ConversationStore, presence UserLocator, logger *slog.Logger) *Router {
	return &Router{
		roomSessions:  make(map[string]map[model.SessionHandle]model.Session),
		sessionRooms:  make(map[model.SessionHandle]map[string]struct{}),
		conversations: conversations,
		presence:      presence,
		logger:        logger,
	}
}

// Join subscribes session to conversationID after confirming the session's
// user is one of the conversation's two participants (DESIGN.md Open
// Question #1: the reference allowed any session to join any room; this
// implementation enforces the participant check the spec recommends and
// silently drops the join otherwise, matching the spec's own "silently
// ignore" framing for the rejected case).
func (r *Router) Join(ctx context.Context, session model.Session, conversationID string) error {
	conv, err := r.conversations.FindConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil || !conv.HasParticipant(session.UserID()) {
		r.logger.Debug("room: join rejected, not a participant",
			slog.String("user_id", session.UserID()), slog.String("conversation_id", conversationID))
		return nil
	}

	handle := session.Handle()

	r.mu.Lock()
	sessions, ok := r.roomSessions[conversationID]
	if !ok {
		sessions = make(map[model.SessionHandle]model.Session)
		r.roomSessions[conversationID] = sessions
	}
	sessions[handle] = session

	rooms, ok := r.sessionRooms[handle]
	if !ok {
		rooms = make(map[string]struct{})
		r.sessionRooms[handle] = rooms
	}
	rooms[conversationID] = struct{}{}
	r.mu.Unlock()

	return nil
}

// Leave unsubscribes session from conversationID.
func (r *Router) Leave(session model.Session, conversationID string) {
	handle := session.Handle()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(handle, conversationID)
}

// PurgeSession removes handle from every room it was subscribed to — called
// on disconnect (spec §4.3: "On disconnect, purge the session from every
// room it was in").
func (r *Router) PurgeSession(handle model.SessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.sessionRooms[handle]
	for conversationID := range rooms {
		if sessions := r.roomSessions[conversationID]; sessions != nil {
			delete(sessions, handle)
			if len(sessions) == 0 {
				delete(r.roomSessions, conversationID)
			}
		}
	}
	delete(r.sessionRooms, handle)
}

// removeLocked assumes mu is already held.
func (r *Router) removeLocked(handle model.SessionHandle, conversationID string) {
	if sessions := r.roomSessions[conversationID]; sessions != nil {
		delete(sessions, handle)
		if len(sessions) == 0 {
			delete(r.roomSessions, conversationID)
		}
	}
	if rooms := r.sessionRooms[handle]; rooms != nil {
		delete(rooms, conversationID)
		if len(rooms) == 0 {
			delete(r.sessionRooms, handle)
		}
	}
}

// EmitToRoom delivers e to every session subscribed to conversationID. When
// except is non-empty, that one session is skipped (spec §4.3: "including
// the originator unless the caller specifies exceptSelf").
func (r *Router) EmitToRoom(conversationID string, e event.Envelope, except model.SessionHandle) {
	r.mu.RLock()
	sessions := make([]model.Session, 0, len(r.roomSessions[conversationID]))
	for handle, s := range r.roomSessions[conversationID] {
		if handle == except {
			continue
		}
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Deliver(e)
	}
}

// EmitToUser delivers e only to userID's active session; a no-op if they
// are offline (spec §4.3).
func (r *Router) EmitToUser(userID string, e event.Envelope) {
	if s, ok := r.presence.SessionOf(userID); ok {
		s.Deliver(e)
	}
}
