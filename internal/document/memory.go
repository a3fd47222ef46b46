package document

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// MemoryStore is an in-process document store with the same semantics as
// the Postgres implementation, for tests and runs without a database.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Record)}
}

// Get returns the record at (collection, id), or nil if absent.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// SetField upserts a single field of a document.
func (s *MemoryStore) SetField(_ context.Context, collection, id, field string, value any) error {
	// Round-trip through JSON so stored shapes match the jsonb backend
	// (ints become float64, structs become maps).
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("document: marshal %s/%s.%s: %w", collection, id, field, err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return fmt.Errorf("document: normalize %s/%s.%s: %w", collection, id, field, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]Record)
		s.collections[collection] = col
	}
	rec, ok := col[id]
	if !ok {
		rec = make(Record)
		col[id] = rec
	}
	rec[field] = normalized
	return nil
}

// List returns every document in a collection, ordered by id.
func (s *MemoryStore) List(_ context.Context, collection string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchLocked(collection, func(Record) bool { return true }), nil
}

// Query returns the documents whose field equals value.
func (s *MemoryStore) Query(_ context.Context, collection, field string, value any) ([]Document, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("document: marshal query value: %w", err)
	}
	var want any
	if err := json.Unmarshal(raw, &want); err != nil {
		return nil, fmt.Errorf("document: normalize query value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchLocked(collection, func(rec Record) bool {
		return reflect.DeepEqual(rec[field], want)
	}), nil
}

func (s *MemoryStore) matchLocked(collection string, match func(Record) bool) []Document {
	var docs []Document
	for id, rec := range s.collections[collection] {
		if match(rec) {
			docs = append(docs, Document{ID: id, Data: copyRecord(rec)})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
