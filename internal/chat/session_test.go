package chat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meetdating/chat-core/internal/channel"
	"github.com/meetdating/chat-core/internal/message"
	"github.com/meetdating/chat-core/internal/presence"
	"github.com/meetdating/chat-core/internal/realtime"
)

// countingStore counts scalar writes so tests can assert write-free paths.
type countingStore struct {
	realtime.Store
	sets atomic.Int32
}

func (c *countingStore) Set(ctx context.Context, path string, value any) error {
	c.sets.Add(1)
	return c.Store.Set(ctx, path, value)
}

func newTestController() (*Controller, *countingStore) {
	store := &countingStore{Store: realtime.NewMemoryStore()}
	return NewController(store, presence.NewTracker(store)), store
}

func recvViews(t *testing.T, s *Session) []message.Message {
	t.Helper()
	select {
	case view, ok := <-s.Views():
		if !ok {
			t.Fatal("views channel closed unexpectedly")
		}
		return view
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for view")
	}
	return nil
}

func waitForViewLen(t *testing.T, s *Session, n int) []message.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case view, ok := <-s.Views():
			if !ok {
				t.Fatal("views channel closed unexpectedly")
			}
			if len(view) == n {
				return view
			}
		case <-deadline:
			t.Fatalf("view never reached %d messages", n)
		}
	}
}

func TestSession_SendRoundTrip(t *testing.T) {
	ctrl, _ := newTestController()
	ctx := context.Background()

	s, err := ctrl.Start(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop(ctx)

	if s.ChannelID != "u1_u2" {
		t.Fatalf("expected channel u1_u2, got %q", s.ChannelID)
	}
	if view := recvViews(t, s); len(view) != 0 {
		t.Fatalf("expected empty initial view, got %d", len(view))
	}

	if err := s.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	view := waitForViewLen(t, s, 1)
	if view[0].Text != "hello" || view[0].SenderID != "u1" || view[0].ReceiverID != "u2" {
		t.Fatalf("unexpected message %+v", view[0])
	}
}

func TestSession_ViewIsNewestFirst(t *testing.T) {
	ctrl, store := newTestController()
	ctx := context.Background()

	// Pre-seed the channel out of timestamp order.
	path := channel.MessagesPath("u1_u2")
	for _, ts := range []int64{100, 300, 200} {
		if _, err := store.Push(ctx, path, message.Message{Text: "m", SenderID: "u1", ReceiverID: "u2", Timestamp: ts}); err != nil {
			t.Fatalf("Push() error: %v", err)
		}
	}

	s, err := ctrl.Start(ctx, "u2", "u1") // reversed order, same channel
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop(ctx)

	view := waitForViewLen(t, s, 3)
	want := []int64{300, 200, 100} // newest first
	for i, ts := range want {
		if view[i].Timestamp != ts {
			t.Fatalf("display position %d: expected timestamp %d, got %d", i, ts, view[i].Timestamp)
		}
	}
}

func TestSession_PresenceLifecycle(t *testing.T) {
	ctrl, store := newTestController()
	tracker := presence.NewTracker(store)
	ctx := context.Background()

	s, err := ctrl.Start(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Opening the screen marked u1 online; observe from another session.
	w, err := tracker.Observe(ctx, "u1")
	if err != nil {
		t.Fatalf("Observe() error: %v", err)
	}
	defer w.Close()
	select {
	case online := <-w.Updates():
		if !online {
			t.Fatal("u1 should be online after Start and before any SetOffline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence")
	}

	// The session reports the other side's flag.
	recvViews(t, s) // drain the initial view
	tracker.SetOnline(ctx, "u2")
	deadline := time.After(2 * time.Second)
	for {
		select {
		case online := <-s.Online():
			if online {
				s.Stop(ctx)
				return
			}
		case <-deadline:
			t.Fatal("session never observed u2 online")
		}
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	ctrl, store := newTestController()
	ctx := context.Background()

	s, err := ctrl.Start(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	s.Stop(ctx)
	writes := store.sets.Load()

	// Second stop: no extra store writes, no panic.
	s.Stop(ctx)
	if got := store.sets.Load(); got != writes {
		t.Fatalf("second Stop produced %d extra writes", got-writes)
	}

	// Pause/Resume after Stop must not write either.
	s.Pause(ctx)
	s.Resume(ctx)
	if got := store.sets.Load(); got != writes {
		t.Fatalf("lifecycle calls after Stop produced %d extra writes", got-writes)
	}
}

func TestSession_StopMarksOffline(t *testing.T) {
	ctrl, store := newTestController()
	ctx := context.Background()

	s, err := ctrl.Start(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	s.Stop(ctx)

	snap, _ := store.Get(ctx, channel.PresencePath("u1"))
	if string(snap.Value) != "false" {
		t.Fatalf("expected u1 offline after Stop, got %s", snap.Value)
	}
}

func TestSession_Degenerate(t *testing.T) {
	ctrl, store := newTestController()
	ctx := context.Background()

	s, err := ctrl.Start(ctx, "u1", "")
	if err != nil {
		t.Fatalf("empty partner must not fail Start, got %v", err)
	}

	// Empty, closed view; every operation a no-op.
	if _, ok := <-s.Views(); ok {
		t.Fatal("degenerate session should have a closed view channel")
	}
	if _, ok := <-s.Online(); ok {
		t.Fatal("degenerate session should have a closed presence channel")
	}
	if err := s.Send(ctx, "hello"); err != nil {
		t.Fatalf("degenerate Send should be a no-op, got %v", err)
	}
	s.Delete(ctx, "m1")
	s.Stop(ctx)
	s.Stop(ctx)

	if got := store.sets.Load(); got != 0 {
		t.Fatalf("degenerate session produced %d store writes", got)
	}
}

func TestSession_DeleteRemovesMessage(t *testing.T) {
	ctrl, _ := newTestController()
	ctx := context.Background()

	s, err := ctrl.Start(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop(ctx)
	recvViews(t, s)

	if err := s.Send(ctx, "oops"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	view := waitForViewLen(t, s, 1)

	s.Delete(ctx, view[0].ID)
	waitForViewLen(t, s, 0)

	// Idempotent and silent.
	s.Delete(ctx, view[0].ID)
}
