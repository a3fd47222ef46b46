// Package profile maps the document store's loosely-typed user records to a
// fixed schema at the boundary. Records written by different app versions
// have arbitrary optional fields; missing values get explicit defaults here
// so the rest of the system never sees store-shape variance.
package profile

import (
	"context"
	"fmt"

	"github.com/meetdating/chat-core/internal/document"
)

// Collection is the document-store collection holding user profiles.
const Collection = "users"

// Defaults for absent record fields.
const (
	DefaultName     = "Anonymous"
	DefaultLocation = "Unknown"
)

// Profile is the typed view of a user record.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Location    string `json:"location"`
	Gender      string `json:"gender,omitempty"`
	Base64Image string `json:"base64Image,omitempty"`
}

// FromRecord decodes a record with defaults: missing name -> "Anonymous",
// age -> 0, location -> "Unknown". Unknown fields are ignored.
func FromRecord(id string, rec document.Record) Profile {
	return Profile{
		ID:          id,
		Name:        stringField(rec, "username", DefaultName),
		Age:         intField(rec, "age"),
		Location:    stringField(rec, "location", DefaultLocation),
		Gender:      stringField(rec, "gender", ""),
		Base64Image: stringField(rec, "profileImage", ""),
	}
}

func stringField(rec document.Record, key, def string) string {
	if s, ok := rec[key].(string); ok && s != "" {
		return s
	}
	return def
}

func intField(rec document.Record, key string) int {
	switch v := rec[key].(type) {
	case float64: // json numbers
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Store reads and writes profiles through the document store.
type Store struct {
	docs document.Store
}

// NewStore creates a profile store.
func NewStore(docs document.Store) *Store {
	return &Store{docs: docs}
}

// Get returns the profile for id. ok is false when no record exists.
func (s *Store) Get(ctx context.Context, id string) (Profile, bool, error) {
	rec, err := s.docs.Get(ctx, Collection, id)
	if err != nil {
		return Profile{}, false, fmt.Errorf("profile: get %s: %w", id, err)
	}
	if rec == nil {
		return Profile{}, false, nil
	}
	return FromRecord(id, rec), true, nil
}

// SetField updates one profile field, creating the record if needed.
func (s *Store) SetField(ctx context.Context, id, field string, value any) error {
	if err := s.docs.SetField(ctx, Collection, id, field, value); err != nil {
		return fmt.Errorf("profile: set %s.%s: %w", id, field, err)
	}
	return nil
}

// Deck returns every profile except the viewer's, the pool the swipe deck
// draws from.
func (s *Store) Deck(ctx context.Context, viewerID string) ([]Profile, error) {
	docs, err := s.docs.List(ctx, Collection)
	if err != nil {
		return nil, fmt.Errorf("profile: deck: %w", err)
	}
	profiles := make([]Profile, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == viewerID {
			continue
		}
		profiles = append(profiles, FromRecord(doc.ID, doc.Data))
	}
	return profiles, nil
}

// ByLocation returns the deck filtered to one location: every profile whose
// location field equals location, except the viewer's own.
func (s *Store) ByLocation(ctx context.Context, viewerID, location string) ([]Profile, error) {
	docs, err := s.docs.Query(ctx, Collection, "location", location)
	if err != nil {
		return nil, fmt.Errorf("profile: by location: %w", err)
	}
	profiles := make([]Profile, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == viewerID {
			continue
		}
		profiles = append(profiles, FromRecord(doc.ID, doc.Data))
	}
	return profiles, nil
}
