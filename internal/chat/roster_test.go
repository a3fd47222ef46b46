package chat

import (
	"context"
	"testing"

	"github.com/meetdating/chat-core/internal/channel"
	"github.com/meetdating/chat-core/internal/message"
	"github.com/meetdating/chat-core/internal/realtime"
)

func TestRoster_LastMessage(t *testing.T) {
	store := realtime.NewMemoryStore()
	roster := NewRoster(store)
	ctx := context.Background()

	path := channel.MessagesPath("u1_u2")
	for _, ts := range []int64{100, 300, 200} {
		store.Push(ctx, path, message.Message{Text: "m", Timestamp: ts})
	}

	last, err := roster.LastMessage(ctx, "u2", "u1")
	if err != nil {
		t.Fatalf("LastMessage() error: %v", err)
	}
	if last == nil || last.Timestamp != 300 {
		t.Fatalf("expected newest timestamp 300, got %+v", last)
	}
}

func TestRoster_EmptyChannel(t *testing.T) {
	store := realtime.NewMemoryStore()
	roster := NewRoster(store)

	last, err := roster.LastMessage(context.Background(), "u1", "u9")
	if err != nil {
		t.Fatalf("LastMessage() error: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil preview for empty channel, got %+v", last)
	}
}

func TestRoster_Entries(t *testing.T) {
	store := realtime.NewMemoryStore()
	roster := NewRoster(store)
	ctx := context.Background()

	store.Push(ctx, channel.MessagesPath("u1_u2"), message.Message{Text: "hey", Timestamp: 5})

	entries := roster.Entries(ctx, "u1", []string{"u2", "u3"})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].LastMessage == nil || entries[0].LastMessage.Text != "hey" {
		t.Errorf("u2 entry should carry the preview, got %+v", entries[0].LastMessage)
	}
	if entries[1].LastMessage != nil {
		t.Errorf("u3 entry should have no preview, got %+v", entries[1].LastMessage)
	}
}
