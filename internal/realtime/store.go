// Package realtime provides the key-value/subscription store the chat core
// is built on. Paths are slash-separated (chats/u1_u2/messages/<id>,
// users/u1/online). A path either holds a scalar value or a collection of
// children keyed by store-assigned push ids.
//
// Two implementations are provided: a Redis-backed store with NATS change
// notification for production, and an in-memory store with identical
// semantics for tests and single-process runs.
package realtime

import (
	"context"
	"encoding/json"
	"sort"
)

// Snapshot is the full current state at a path, delivered on Get and on
// every subscription update. Exactly one of Value or Children is populated;
// an absent path yields a snapshot with both empty.
type Snapshot struct {
	Path string

	// Value holds the raw JSON of a scalar path.
	Value json.RawMessage

	// Children holds a collection path's children keyed by push id.
	Children map[string]json.RawMessage

	// Keys lists the child keys in store insertion order (push ids sort
	// lexicographically by creation time).
	Keys []string
}

// Exists reports whether the path held anything at snapshot time.
func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 || len(s.Children) > 0
}

// Subscription is a live feed of snapshots for a single path. The current
// snapshot is delivered first, then one snapshot per subsequent change, in
// the order the store observed them.
type Subscription interface {
	// Updates returns the snapshot channel. It is closed after Close.
	Updates() <-chan Snapshot

	// Close tears the subscription down. No snapshot is delivered after
	// Close returns, even if a store round trip is still in flight.
	Close()
}

// Store is the generic realtime store surface. All writes are independent
// and last-writer-wins; there are no transactions.
type Store interface {
	// Get reads the current snapshot at path.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set writes a scalar value at path.
	Set(ctx context.Context, path string, value any) error

	// Push appends value to the collection at path under a new
	// store-assigned id and returns that id.
	Push(ctx context.Context, path string, value any) (string, error)

	// Remove deletes the value at path. Removing an absent path is not an
	// error.
	Remove(ctx context.Context, path string) error

	// Subscribe opens a live snapshot feed for path.
	Subscribe(ctx context.Context, path string) (Subscription, error)
}

// sortedKeys returns the child keys of a collection in push-id order.
func sortedKeys(children map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// marshalValue encodes a value for storage, passing through pre-encoded
// JSON unchanged.
func marshalValue(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(value)
}
