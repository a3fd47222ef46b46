package presence

import (
	"context"
	"testing"
	"time"

	"github.com/meetdating/chat-core/internal/realtime"
)

func recvFlag(t *testing.T, w *Watch) bool {
	t.Helper()
	select {
	case v, ok := <-w.Updates():
		if !ok {
			t.Fatal("watch channel closed unexpectedly")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence value")
	}
	return false
}

func TestObserve_DeliversCurrentValueFirst(t *testing.T) {
	store := realtime.NewMemoryStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	tracker.SetOnline(ctx, "u1")

	// An observer from another session sees true before any SetOffline.
	w, err := tracker.Observe(ctx, "u1")
	if err != nil {
		t.Fatalf("Observe() error: %v", err)
	}
	defer w.Close()

	if !recvFlag(t, w) {
		t.Fatal("expected initial value true after SetOnline")
	}
}

func TestObserve_MissingFlagReadsOffline(t *testing.T) {
	store := realtime.NewMemoryStore()
	tracker := NewTracker(store)

	w, err := tracker.Observe(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Observe() error: %v", err)
	}
	defer w.Close()

	if recvFlag(t, w) {
		t.Fatal("absent flag should read as offline")
	}
}

func TestObserve_SeesToggles(t *testing.T) {
	store := realtime.NewMemoryStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	w, err := tracker.Observe(ctx, "u2")
	if err != nil {
		t.Fatalf("Observe() error: %v", err)
	}
	defer w.Close()
	recvFlag(t, w) // initial false

	tracker.SetOnline(ctx, "u2")
	if !recvFlag(t, w) {
		t.Fatal("expected true after SetOnline")
	}

	tracker.SetOffline(ctx, "u2")
	if recvFlag(t, w) {
		t.Fatal("expected false after SetOffline")
	}
}

func TestWatch_CloseStopsDelivery(t *testing.T) {
	store := realtime.NewMemoryStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	w, err := tracker.Observe(ctx, "u3")
	if err != nil {
		t.Fatalf("Observe() error: %v", err)
	}
	recvFlag(t, w)
	w.Close()

	tracker.SetOnline(ctx, "u3")

	select {
	case v, ok := <-w.Updates():
		if ok {
			t.Fatalf("received %v after Close", v)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("updates channel should be closed after Close")
	}

	// Idempotent.
	w.Close()
}

func TestSetOnline_EmptyIDIsNoOp(t *testing.T) {
	store := realtime.NewMemoryStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	tracker.SetOnline(ctx, "")
	tracker.SetOffline(ctx, "")

	snap, _ := store.Get(ctx, "users//online")
	if snap.Exists() {
		t.Fatal("empty participant id must not produce a write")
	}
}
