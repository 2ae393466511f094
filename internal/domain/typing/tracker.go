// Package typing implements spec §4.4: per-conversation typing heartbeats
// with debounced transitions and idle auto-expiry. Grounded on the
// uncord-chat-uncord-server typing-ttl vocabulary cited in DESIGN.md, with
// the reaping loop carried over from the teacher's janitor-ticker idiom
// already used in presence.Registry.
package typing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/model"
)

const defaultIdleTimeout = 3 * time.Second

// Emitter is the narrow room.Router slice the Tracker needs to fan out
// user:typing without importing the room package directly.
type Emitter interface {
	EmitToRoom(conversationID string, e event.Envelope, except model.SessionHandle)
}

type entryKey struct {
	conversationID string
	userID         string
}

// Tracker is the Typing Tracker. One process-wide instance guards every
// conversation's typing set behind a single mutex; heartbeat volume is low
// enough that per-conversation sharding isn't warranted here.
type Tracker struct {
	mu      sync.Mutex
	entries map[entryKey]model.TypingEntry

	idleTimeout time.Duration
	reapEvery   time.Duration

	room   Emitter
	logger *slog.Logger

	stopCh chan struct{}
}

// Option configures a Tracker at construction.
type Option func(*Tracker)

// WithIdleTimeout overrides the idle window before a typing entry
// auto-expires (spec §4.4, config-driven via cfg.Lifecycle.TypingIdle).
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.idleTimeout = d }
}

// New builds a Tracker and starts its idle reaper.
func New(room Emitter, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		entries:     make(map[entryKey]model.TypingEntry),
		idleTimeout: defaultIdleTimeout,
		reapEvery:   time.Second,
		room:        room,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.runReaper()
	return t
}

// Heartbeat upserts or clears a (conversationId, userId) typing entry and
// emits user:typing to the room, excluding the originating session (spec
// §4.4).
func (t *Tracker) Heartbeat(conversationID, userID, username string, originator model.SessionHandle, isTyping bool) {
	key := entryKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	if isTyping {
		t.entries[key] = model.TypingEntry{
			ConversationID: conversationID,
			UserID:         userID,
			LastSeenAt:     time.Now(),
		}
	} else {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	t.emit(conversationID, userID, username, originator, isTyping)
}

// StopAll clears every typing entry userID holds across all conversations,
// emitting isTyping:false for each — called on disconnect so a client that
// disconnects mid-type is reported as stopped (spec §4.4 edge case).
func (t *Tracker) StopAll(userID, username string, originator model.SessionHandle) {
	t.mu.Lock()
	var stopped []string
	for key := range t.entries {
		if key.userID == userID {
			stopped = append(stopped, key.conversationID)
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()

	for _, conversationID := range stopped {
		t.emit(conversationID, userID, username, originator, false)
	}
}

func (t *Tracker) emit(conversationID, userID, username string, originator model.SessionHandle, isTyping bool) {
	e := event.New(event.UserTyping, event.UserTypingPayload{
		UserID:         userID,
		Username:       username,
		IsTyping:       isTyping,
		ConversationID: conversationID,
	})
	t.room.EmitToRoom(conversationID, e, originator)
}

func (t *Tracker) runReaper() {
	ticker := time.NewTicker(t.reapEvery)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.reapIdle()
		}
	}
}

// reapIdle removes entries whose lastSeenAt exceeds the idle timeout,
// emitting isTyping:false exactly once per expired entry (spec §4.4).
// usernames are not resolvable from a bare entry at reap time, so the
// payload's username is left empty here; clients key off userId.
func (t *Tracker) reapIdle() {
	now := time.Now()

	t.mu.Lock()
	var expired []model.TypingEntry
	for key, entry := range t.entries {
		if now.Sub(entry.LastSeenAt) > t.idleTimeout {
			expired = append(expired, entry)
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()

	for _, entry := range expired {
		t.emit(entry.ConversationID, entry.UserID, "", "", false)
	}
	if len(expired) > 0 {
		t.logger.Debug("typing: reaped idle entries", slog.Int("count", len(expired)))
	}
}

// Shutdown stops the reaper goroutine.
func (t *Tracker) Shutdown() {
	close(t.stopCh)
}
