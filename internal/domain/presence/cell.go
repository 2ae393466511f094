package presence

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/model"
)

// cell is a single user's actor: one mailbox goroutine fronting at most one
// active Session (see DESIGN.md Open Question #3 — a newer connection
// replaces the older one rather than fanning out to both). The shape —
// buffered mailbox, batch-draining loop, idle eviction via an atomic
// timestamp — is carried over from the teacher's Virtual Cell
// (internal/domain/registry/cell.go), narrowed from "many sessions per
// user" to "at most one", since federation/multi-device semantics are an
// explicit Open Question this implementation resolves by replacement.
type cell struct {
	userID string

	mu      sync.RWMutex
	session model.Session

	mirrorMu sync.Mutex // serializes this user's isOnline store writes

	mailbox chan event.Envelope
	doneCh  chan struct{}

	lastActivityUnix int64
}

func newCell(userID string, mailboxSize int) *cell {
	c := &cell{
		userID:           userID,
		mailbox:          make(chan event.Envelope, mailboxSize),
		doneCh:           make(chan struct{}),
		lastActivityUnix: time.Now().Unix(),
	}
	go c.loop()
	return c
}

func (c *cell) touch() {
	atomic.StoreInt64(&c.lastActivityUnix, time.Now().Unix())
}

// isIdle reports whether the cell has no active session and has been empty
// for longer than timeout, making it eligible for reclamation by the
// janitor.
func (c *cell) isIdle(timeout time.Duration) bool {
	c.mu.RLock()
	hasSession := c.session != nil
	c.mu.RUnlock()
	if hasSession {
		return false
	}
	return time.Since(time.Unix(atomic.LoadInt64(&c.lastActivityUnix), 0)) > timeout
}

// attach installs session as the cell's sole active session. If a different
// session was already active, it is closed and returned as replaced so the
// caller (the Registry) can log the forced disconnect. wentOnline reports
// whether this attach is a 0 -> 1 transition (the only time a user:status
// online broadcast is warranted).
func (c *cell) attach(session model.Session) (wentOnline bool, replaced model.Session) {
	c.mu.Lock()
	wentOnline = c.session == nil
	if c.session != nil && c.session.Handle() != session.Handle() {
		replaced = c.session
	}
	c.session = session
	c.mu.Unlock()
	c.touch()
	return wentOnline, replaced
}

// detach removes handle if it is the cell's current session. It reports
// wentOffline when this detach is a 1 -> 0 transition (idempotent: detaching
// a handle that is not the current session, e.g. because it was already
// replaced, is a no-op).
func (c *cell) detach(handle model.SessionHandle) (wentOffline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.Handle() != handle {
		return false
	}
	c.session = nil
	c.touch()
	return true
}

func (c *cell) currentSession() model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// push enqueues an envelope for this user's session, dropping it under
// backpressure rather than blocking the caller (spec §5: "Backpressure:
// outbound emission ... MUST NOT block other deliveries").
func (c *cell) push(e event.Envelope) bool {
	c.touch()
	select {
	case c.mailbox <- e:
		return true
	default:
		return false
	}
}

func (c *cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case e := <-c.mailbox:
			c.deliver(e)
			for range 64 {
				select {
				case next := <-c.mailbox:
					c.deliver(next)
				default:
					goto wait
				}
			}
		wait:
		}
	}
}

func (c *cell) deliver(e event.Envelope) {
	s := c.currentSession()
	if s == nil {
		return
	}
	s.Deliver(e)
}

func (c *cell) stop() {
	close(c.doneCh)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
}
