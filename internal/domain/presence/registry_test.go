package presence

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/model"
)

type fakeSession struct {
	handle model.SessionHandle
	userID string

	mu       sync.Mutex
	received []event.Envelope
	closed   bool
}

func (s *fakeSession) Handle() model.SessionHandle { return s.handle }
func (s *fakeSession) UserID() string              { return s.userID }
func (s *fakeSession) Deliver(e event.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, e)
	return true
}
func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeUserStore struct {
	mu     sync.Mutex
	online map[string]bool
}

func (f *fakeUserStore) SetUserOnline(_ context.Context, userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.online == nil {
		f.online = map[string]bool{}
	}
	f.online[userID] = online
	return nil
}

func (f *fakeUserStore) FindUsernameByID(_ context.Context, userID string) (string, error) {
	return userID, nil
}

// waitForCount waits up to a second for s to have received at least n
// envelopes: broadcasts reach a session through its cell's mailbox
// goroutine, not synchronously inside Attach/Detach.
func waitForCount(s *fakeSession, n int) {
	deadline := time.Now().Add(time.Second)
	for s.count() < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

func newTestRegistry() (*Registry, *fakeUserStore) {
	store := &fakeUserStore{}
	r := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), WithEvictionInterval(10*time.Millisecond))
	return r, store
}

func TestAttachMakesUserOnlineAndBroadcastsToOthers(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Shutdown()

	bob := &fakeSession{handle: "h-bob", userID: "bob"}
	r.Attach(context.Background(), bob)

	alice := &fakeSession{handle: "h-alice", userID: "alice"}
	r.Attach(context.Background(), alice)

	if !r.IsOnline("alice") || !r.IsOnline("bob") {
		t.Fatal("expected both users online after attach")
	}
	waitForCount(bob, 1)
	if bob.count() != 1 {
		t.Fatalf("expected bob to observe alice's online broadcast exactly once, got %d", bob.count())
	}
}

func TestAttachDoesNotBroadcastToTheAttachingUserItself(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Shutdown()

	alice := &fakeSession{handle: "h-alice", userID: "alice"}
	r.Attach(context.Background(), alice)

	if alice.count() != 0 {
		t.Fatalf("attaching user should never see its own online broadcast, got %d", alice.count())
	}
}

func TestSecondAttachForSameUserReplacesAndClosesThePriorSession(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Shutdown()

	first := &fakeSession{handle: "h1", userID: "alice"}
	second := &fakeSession{handle: "h2", userID: "alice"}

	r.Attach(context.Background(), first)
	r.Attach(context.Background(), second)

	if !first.isClosed() {
		t.Fatal("expected the replaced session to be closed")
	}
	s, ok := r.SessionOf("alice")
	if !ok || s.Handle() != "h2" {
		t.Fatalf("expected the newer session to be current, got %+v ok=%v", s, ok)
	}
}

func TestDetachGoesOfflineAndBroadcastsOnlyOnce(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Shutdown()

	alice := &fakeSession{handle: "h-alice", userID: "alice"}
	bob := &fakeSession{handle: "h-bob", userID: "bob"}
	r.Attach(context.Background(), bob)
	r.Attach(context.Background(), alice)

	r.Detach(context.Background(), "alice", "h-alice")
	r.Detach(context.Background(), "alice", "h-alice")

	if r.IsOnline("alice") {
		t.Fatal("expected alice offline after detach")
	}
	waitForCount(bob, 2)
	if bob.count() != 2 {
		t.Fatalf("expected bob to see exactly one online and one offline broadcast, got %d", bob.count())
	}
}

func TestDetachOfStaleHandleIsANoop(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Shutdown()

	first := &fakeSession{handle: "h1", userID: "alice"}
	second := &fakeSession{handle: "h2", userID: "alice"}
	r.Attach(context.Background(), first)
	r.Attach(context.Background(), second)

	r.Detach(context.Background(), "alice", "h1")

	if !r.IsOnline("alice") {
		t.Fatal("detaching a replaced handle must not take the current session offline")
	}
}

func TestSessionOfUnknownUserReportsNotFound(t *testing.T) {
	r, _ := newTestRegistry()
	defer r.Shutdown()

	if _, ok := r.SessionOf("nobody"); ok {
		t.Fatal("expected no session for an unknown user")
	}
}

func TestMirrorOnlineEventuallyReflectsAttachAndDetach(t *testing.T) {
	r, store := newTestRegistry()
	defer r.Shutdown()

	alice := &fakeSession{handle: "h-alice", userID: "alice"}
	r.Attach(context.Background(), alice)
	r.Detach(context.Background(), "alice", "h-alice")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		online, seen := store.online["alice"]
		store.mu.Unlock()
		if seen && !online {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected the store mirror to eventually observe alice offline")
}
