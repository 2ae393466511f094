// Package presence implements spec §4.2: the process-wide mapping from user
// id to active session, and the online/offline transitions derived from it.
// Grounded on the teacher's Virtual Cell actor registry
// (internal/domain/registry/{hub,cell}.go): a lock-free sync.Map of
// per-user actors, each independently reclaimed by a janitor.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/model"
)

// UserStore is the narrow slice of the Store Adapter Presence needs to keep
// the persisted isOnline mirror eventually consistent (I-U1).
type UserStore interface {
	SetUserOnline(ctx context.Context, userID string, online bool) error
	FindUsernameByID(ctx context.Context, userID string) (string, error)
}

// Registry is the Presence Registry. Every public method is linearizable
// with respect to every other (spec §4.2): cells are looked up and mutated
// through sync.Map and per-cell mutexes, never a single global lock.
type Registry struct {
	cells sync.Map // userID (string) -> *cell

	evictionInterval time.Duration
	idleTimeout      time.Duration
	mailboxSize      int

	store  UserStore
	logger *slog.Logger

	stopCh chan struct{}
}

// New builds a Registry and starts its idle-cell janitor. Sensible defaults
// mirror the teacher's (1-minute eviction sweep, 5-minute idle window, 1024
// deep per-user mailbox) and are overridable via Option.
func New(store UserStore, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		evictionInterval: time.Minute,
		idleTimeout:      5 * time.Minute,
		mailboxSize:      1024,
		store:            store,
		logger:           logger,
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.runEvictor()
	return r
}

// IsOnline reports whether userID currently has an attached session.
func (r *Registry) IsOnline(userID string) bool {
	v, ok := r.cells.Load(userID)
	if !ok {
		return false
	}
	return v.(*cell).currentSession() != nil
}

// SessionOf returns the user's current active session, if any.
func (r *Registry) SessionOf(userID string) (model.Session, bool) {
	v, ok := r.cells.Load(userID)
	if !ok {
		return nil, false
	}
	s := v.(*cell).currentSession()
	return s, s != nil
}

// Attach registers session under userID (spec §4.2). It is idempotent with
// respect to repeated attach of the same handle. On a 0 -> 1 transition it
// broadcasts user:status{isOnline:true} to every other online user exactly
// once and asynchronously mirrors isOnline=true to the store. A second
// concurrent connection for the same user replaces the first (DESIGN.md
// Open Question #3); the replaced session is closed here, outside of any
// lock, so its own disconnect cleanup (room purge) still runs normally.
func (r *Registry) Attach(ctx context.Context, session model.Session) {
	userID := session.UserID()
	v, _ := r.cells.LoadOrStore(userID, newCell(userID, r.mailboxSize))
	c := v.(*cell)

	wentOnline, replaced := c.attach(session)

	if replaced != nil {
		r.logger.Info("presence: replacing existing session", slog.String("user_id", userID))
		replaced.Close()
	}

	if wentOnline {
		r.logger.Debug("presence: user online", slog.String("user_id", userID))
		r.broadcastStatus(userID, true)
		r.mirrorOnline(ctx, c)
	}
}

// Detach removes handle from userID's cell (spec §4.2). On a 1 -> 0
// transition it broadcasts user:status{isOnline:false} exactly once and
// mirrors isOnline=false to the store.
func (r *Registry) Detach(ctx context.Context, userID string, handle model.SessionHandle) {
	v, ok := r.cells.Load(userID)
	if !ok {
		return
	}
	c := v.(*cell)

	if c.detach(handle) {
		r.logger.Debug("presence: user offline", slog.String("user_id", userID))
		r.broadcastStatus(userID, false)
		r.mirrorOnline(ctx, c)
	}
}

// broadcastStatus delivers user:status to every other user's active
// session (spec §4.2: "broadcast ... to all other sessions").
func (r *Registry) broadcastStatus(userID string, online bool) {
	e := event.New(event.UserStatus, event.UserStatusPayload{UserID: userID, IsOnline: online})
	r.cells.Range(func(key, value any) bool {
		if key.(string) == userID {
			return true
		}
		value.(*cell).push(e)
		return true
	})
}

// mirrorOnline writes the cell's current online state to the store in the
// background. Writes for one user are serialized and each reads the state
// at write time, so the last write always reflects the latest transition.
func (r *Registry) mirrorOnline(ctx context.Context, c *cell) {
	go func() {
		c.mirrorMu.Lock()
		defer c.mirrorMu.Unlock()
		online := c.currentSession() != nil
		if err := r.store.SetUserOnline(context.WithoutCancel(ctx), c.userID, online); err != nil {
			r.logger.Error("presence: mirror isOnline failed",
				slog.String("user_id", c.userID), slog.Bool("online", online), slog.Any("err", err))
		}
	}()
}

func (r *Registry) runEvictor() {
	ticker := time.NewTicker(r.evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	reaped := 0
	r.cells.Range(func(key, value any) bool {
		c := value.(*cell)
		if c.isIdle(r.idleTimeout) {
			c.stop()
			r.cells.Delete(key)
			reaped++
		}
		return true
	})
	if reaped > 0 {
		r.logger.Debug("presence: reclaimed idle cells", slog.Int("count", reaped))
	}
}

// Shutdown stops the janitor and every user cell, closing their sessions.
func (r *Registry) Shutdown() {
	close(r.stopCh)
	r.cells.Range(func(_, value any) bool {
		value.(*cell).stop()
		return true
	})
}
