package profile

import (
	"context"
	"testing"

	"github.com/meetdating/chat-core/internal/document"
)

func TestFromRecord_Defaults(t *testing.T) {
	tests := []struct {
		name string
		rec  document.Record
		want Profile
	}{
		{
			name: "empty record",
			rec:  document.Record{},
			want: Profile{ID: "u1", Name: "Anonymous", Age: 0, Location: "Unknown"},
		},
		{
			name: "full record",
			rec: document.Record{
				"username":     "Maya",
				"age":          float64(29),
				"location":     "Berlin",
				"gender":       "female",
				"profileImage": "aW1n",
			},
			want: Profile{ID: "u1", Name: "Maya", Age: 29, Location: "Berlin", Gender: "female", Base64Image: "aW1n"},
		},
		{
			name: "wrong types fall back",
			rec:  document.Record{"username": 42, "age": "old", "location": false},
			want: Profile{ID: "u1", Name: "Anonymous", Age: 0, Location: "Unknown"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromRecord("u1", tt.rec); got != tt.want {
				t.Errorf("FromRecord() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStore_GetAbsent(t *testing.T) {
	store := NewStore(document.NewMemoryStore())

	_, ok, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for absent profile")
	}
}

func TestStore_SetFieldAndGet(t *testing.T) {
	store := NewStore(document.NewMemoryStore())
	ctx := context.Background()

	if err := store.SetField(ctx, "u1", "username", "Maya"); err != nil {
		t.Fatalf("SetField() error: %v", err)
	}
	if err := store.SetField(ctx, "u1", "age", 29); err != nil {
		t.Fatalf("SetField() error: %v", err)
	}

	p, ok, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok {
		t.Fatal("expected profile to exist")
	}
	if p.Name != "Maya" || p.Age != 29 {
		t.Errorf("unexpected profile %+v", p)
	}
	if p.Location != "Unknown" {
		t.Errorf("missing location should default, got %q", p.Location)
	}
}

func TestStore_DeckExcludesViewer(t *testing.T) {
	store := NewStore(document.NewMemoryStore())
	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "u3"} {
		store.SetField(ctx, id, "username", id)
	}

	deck, err := store.Deck(ctx, "u2")
	if err != nil {
		t.Fatalf("Deck() error: %v", err)
	}
	if len(deck) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(deck))
	}
	for _, p := range deck {
		if p.ID == "u2" {
			t.Error("deck must not contain the viewer")
		}
	}
}

func TestStore_ByLocation(t *testing.T) {
	store := NewStore(document.NewMemoryStore())
	ctx := context.Background()

	store.SetField(ctx, "u1", "location", "Berlin")
	store.SetField(ctx, "u2", "location", "Paris")
	store.SetField(ctx, "u3", "location", "Berlin")

	got, err := store.ByLocation(ctx, "u2", "Berlin")
	if err != nil {
		t.Fatalf("ByLocation() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(got))
	}
}

func TestStore_ByLocationExcludesViewer(t *testing.T) {
	store := NewStore(document.NewMemoryStore())
	ctx := context.Background()

	store.SetField(ctx, "u1", "location", "Berlin")
	store.SetField(ctx, "u3", "location", "Berlin")

	got, err := store.ByLocation(ctx, "u1", "Berlin")
	if err != nil {
		t.Fatalf("ByLocation() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u3" {
		t.Fatalf("expected only u3, got %+v", got)
	}
}
