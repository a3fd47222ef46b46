package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func recvSnapshot(t *testing.T, sub Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		if !ok {
			t.Fatal("updates channel closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestMemoryStore_ScalarSetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "users/u1/online", true); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	snap, err := store.Get(ctx, "users/u1/online")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !snap.Exists() {
		t.Fatal("expected value to exist")
	}

	var online bool
	if err := json.Unmarshal(snap.Value, &online); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !online {
		t.Error("expected online=true")
	}
}

func TestMemoryStore_GetAbsent(t *testing.T) {
	store := NewMemoryStore()

	snap, err := store.Get(context.Background(), "users/nobody/online")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if snap.Exists() {
		t.Error("expected absent path to yield empty snapshot")
	}
}

func TestMemoryStore_PushOrdersChildren(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	path := "chats/a_b/messages"

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		id, err := store.Push(ctx, path, map[string]string{"text": text})
		if err != nil {
			t.Fatalf("Push() error: %v", err)
		}
		ids = append(ids, id)
	}

	snap, err := store.Get(ctx, path)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(snap.Keys) != 3 {
		t.Fatalf("expected 3 children, got %d", len(snap.Keys))
	}
	for i, id := range ids {
		if snap.Keys[i] != id {
			t.Errorf("key[%d]: expected %q (insertion order), got %q", i, id, snap.Keys[i])
		}
	}
}

func TestMemoryStore_RemoveChild(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	path := "chats/a_b/messages"

	id1, _ := store.Push(ctx, path, map[string]string{"text": "keep"})
	id2, _ := store.Push(ctx, path, map[string]string{"text": "drop"})

	if err := store.Remove(ctx, path+"/"+id2); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}

	snap, _ := store.Get(ctx, path)
	if len(snap.Children) != 1 {
		t.Fatalf("expected 1 child left, got %d", len(snap.Children))
	}
	if _, ok := snap.Children[id1]; !ok {
		t.Errorf("surviving child should be %q", id1)
	}

	// Removing an id that is already gone is not an error.
	if err := store.Remove(ctx, path+"/"+id2); err != nil {
		t.Errorf("second Remove() should be a no-op, got %v", err)
	}
}

func TestMemoryStore_SubscribeDeliversCurrentThenChanges(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	path := "users/u1/online"

	if err := store.Set(ctx, path, true); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	sub, err := store.Subscribe(ctx, path)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	first := recvSnapshot(t, sub)
	var online bool
	json.Unmarshal(first.Value, &online)
	if !online {
		t.Fatal("initial snapshot should carry the current value true")
	}

	store.Set(ctx, path, false)
	second := recvSnapshot(t, sub)
	json.Unmarshal(second.Value, &online)
	if online {
		t.Fatal("change snapshot should carry false")
	}
}

func TestMemoryStore_CollectionSubscription(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	path := "chats/a_b/messages"

	sub, err := store.Subscribe(ctx, path)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	if snap := recvSnapshot(t, sub); snap.Exists() {
		t.Fatal("initial snapshot of empty collection should be empty")
	}

	id, err := store.Push(ctx, path, map[string]string{"text": "hello"})
	if err != nil {
		t.Fatalf("Push() error: %v", err)
	}

	snap := recvSnapshot(t, sub)
	if len(snap.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(snap.Children))
	}
	if _, ok := snap.Children[id]; !ok {
		t.Errorf("snapshot missing pushed id %q", id)
	}

	// Removing the child notifies the collection watcher too.
	store.Remove(ctx, path+"/"+id)
	for {
		snap = recvSnapshot(t, sub)
		if len(snap.Children) == 0 {
			break
		}
	}
}

func TestSubscription_NoDeliveryAfterClose(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	path := "users/u9/online"

	sub, err := store.Subscribe(ctx, path)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	recvSnapshot(t, sub) // initial

	sub.Close()

	// Writes after Close must not reach the subscriber; the channel is
	// closed and stays closed.
	store.Set(ctx, path, true)

	select {
	case snap, ok := <-sub.Updates():
		if ok {
			t.Fatalf("received snapshot %+v after Close", snap)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("updates channel should be closed after Close")
	}

	// Close is idempotent.
	sub.Close()
}

func TestSubscription_OrderPreserved(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	path := "users/u2/online"

	sub, err := store.Subscribe(ctx, path)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()
	recvSnapshot(t, sub) // initial

	// Alternate the flag; the subscriber must observe the writes in issue
	// order with no reordering.
	want := []bool{true, false, true, false, true}
	for _, v := range want {
		store.Set(ctx, path, v)
	}
	for i, expected := range want {
		snap := recvSnapshot(t, sub)
		var got bool
		json.Unmarshal(snap.Value, &got)
		if got != expected {
			t.Fatalf("update %d: expected %v, got %v", i, expected, got)
		}
	}
}
