package realtime

import (
	"math/rand/v2"
	"sync"
	"time"
)

// pushAlphabet is ordered by ASCII value so that push ids sort
// lexicographically in creation order.
const pushAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// pushIDGenerator produces 20-character collection keys: 8 characters encode
// the millisecond timestamp, 12 are random. Ids generated in the same
// millisecond by one client reuse the previous random suffix incremented by
// one, keeping them strictly increasing.
type pushIDGenerator struct {
	mu         sync.Mutex
	now        func() int64 // millis
	lastMillis int64
	lastRand   [12]int
}

func newPushIDGenerator(now func() int64) *pushIDGenerator {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &pushIDGenerator{now: now}
}

// Next returns a new push id, strictly greater than any id this generator
// returned before.
func (g *pushIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now()
	if millis == g.lastMillis {
		// Same millisecond: bump the previous suffix.
		for i := 11; i >= 0; i-- {
			g.lastRand[i]++
			if g.lastRand[i] < 64 {
				break
			}
			g.lastRand[i] = 0
		}
	} else {
		for i := range g.lastRand {
			g.lastRand[i] = rand.IntN(64)
		}
	}
	g.lastMillis = millis

	var id [20]byte
	for i := 7; i >= 0; i-- {
		id[i] = pushAlphabet[millis%64]
		millis /= 64
	}
	for i, v := range g.lastRand {
		id[8+i] = pushAlphabet[v]
	}
	return string(id[:])
}

var defaultPushIDs = newPushIDGenerator(nil)

// NewPushID returns a store-assigned collection key ordered by creation
// time, the shape the mobile app relies on for message insertion order.
func NewPushID() string {
	return defaultPushIDs.Next()
}
