package realtime

import (
	"sort"
	"testing"
)

func TestPushID_Length(t *testing.T) {
	id := NewPushID()
	if len(id) != 20 {
		t.Fatalf("expected 20 characters, got %d (%q)", len(id), id)
	}
}

func TestPushID_SortsByCreationOrder(t *testing.T) {
	gen := newPushIDGenerator(nil)

	ids := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		ids = append(ids, gen.Next())
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("id %d out of order: generated %q, sorted position holds %q", i, ids[i], sorted[i])
		}
	}
}

func TestPushID_SameMillisecondStillIncreases(t *testing.T) {
	// Frozen clock: every id lands in the same millisecond.
	gen := newPushIDGenerator(func() int64 { return 1700000000000 })

	prev := gen.Next()
	for i := 0; i < 100; i++ {
		next := gen.Next()
		if next <= prev {
			t.Fatalf("id %q not greater than previous %q", next, prev)
		}
		prev = next
	}
}

func TestPushID_TimestampPrefixOrders(t *testing.T) {
	var now int64 = 1000
	gen := newPushIDGenerator(func() int64 { return now })

	a := gen.Next()
	now = 2000
	b := gen.Next()
	if a >= b {
		t.Fatalf("later timestamp should sort after: %q >= %q", a, b)
	}
}

func TestPushID_Unique(t *testing.T) {
	gen := newPushIDGenerator(nil)
	seen := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		id := gen.Next()
		if seen[id] {
			t.Fatalf("duplicate push id %q", id)
		}
		seen[id] = true
	}
}
