package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store with the same semantics as the Redis
// implementation: scalar paths, push-id collections, full-snapshot
// subscriptions. It backs unit tests and single-process runs.
type MemoryStore struct {
	mu          sync.Mutex
	scalars     map[string]json.RawMessage
	collections map[string]map[string]json.RawMessage
	watchers    map[string]map[*subscription]struct{}
	ids         *pushIDGenerator
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scalars:     make(map[string]json.RawMessage),
		collections: make(map[string]map[string]json.RawMessage),
		watchers:    make(map[string]map[*subscription]struct{}),
		ids:         newPushIDGenerator(nil),
	}
}

func normalize(path string) string {
	return strings.Trim(path, "/")
}

func (s *MemoryStore) snapshotLocked(path string) Snapshot {
	snap := Snapshot{Path: path}
	if col, ok := s.collections[path]; ok && len(col) > 0 {
		snap.Children = make(map[string]json.RawMessage, len(col))
		for id, val := range col {
			snap.Children[id] = val
		}
		snap.Keys = sortedKeys(snap.Children)
		return snap
	}
	if val, ok := s.scalars[path]; ok {
		snap.Value = val
	}
	return snap
}

func (s *MemoryStore) notifyLocked(path string) {
	snap := s.snapshotLocked(path)
	for sub := range s.watchers[path] {
		sub.deliver(snap)
	}
}

// Get reads the current snapshot at path.
func (s *MemoryStore) Get(_ context.Context, path string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(normalize(path)), nil
}

// Set writes a scalar value at path.
func (s *MemoryStore) Set(_ context.Context, path string, value any) error {
	raw, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("realtime: marshal %s: %w", path, err)
	}
	path = normalize(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalars[path] = raw
	s.notifyLocked(path)
	if parent, _, ok := splitParent(path); ok {
		s.notifyLocked(parent)
	}
	return nil
}

// Push appends value to the collection at path under a fresh push id.
func (s *MemoryStore) Push(_ context.Context, path string, value any) (string, error) {
	raw, err := marshalValue(value)
	if err != nil {
		return "", fmt.Errorf("realtime: marshal %s: %w", path, err)
	}
	path = normalize(path)
	id := s.ids.Next()

	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[path]
	if !ok {
		col = make(map[string]json.RawMessage)
		s.collections[path] = col
	}
	col[id] = raw
	s.notifyLocked(path)
	return id, nil
}

// Remove deletes path; absent paths are a no-op.
func (s *MemoryStore) Remove(_ context.Context, path string) error {
	path = normalize(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scalars, path)
	delete(s.collections, path)
	s.notifyLocked(path)
	if parent, leaf, ok := splitParent(path); ok {
		if col, exists := s.collections[parent]; exists {
			delete(col, leaf)
		}
		s.notifyLocked(parent)
	}
	return nil
}

// Subscribe opens a live snapshot feed for path, delivering the current
// snapshot immediately.
func (s *MemoryStore) Subscribe(_ context.Context, path string) (Subscription, error) {
	path = normalize(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	var sub *subscription
	sub = newSubscription(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[path], sub)
	})

	set, ok := s.watchers[path]
	if !ok {
		set = make(map[*subscription]struct{})
		s.watchers[path] = set
	}
	set[sub] = struct{}{}
	sub.deliver(s.snapshotLocked(path))
	return sub, nil
}
