// Package presence manages the per-user "online" flag shown on the chat
// screen. The flag is a single last-writer-wins boolean per user at
// users/{id}/online; whichever screen most recently entered or left the
// foreground wins. Writes are best-effort: presence is cosmetic, so
// failures are logged and counted, never propagated.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/meetdating/chat-core/internal/channel"
	"github.com/meetdating/chat-core/internal/metrics"
	"github.com/meetdating/chat-core/internal/realtime"
)

// Tracker writes and observes presence flags through the realtime store.
type Tracker struct {
	store realtime.Store
}

// NewTracker creates a Tracker on top of the given store.
func NewTracker(store realtime.Store) *Tracker {
	return &Tracker{store: store}
}

// SetOnline marks the participant online. Fire-and-forget.
func (t *Tracker) SetOnline(ctx context.Context, participantID string) {
	t.write(ctx, participantID, true)
}

// SetOffline marks the participant offline. Fire-and-forget.
func (t *Tracker) SetOffline(ctx context.Context, participantID string) {
	t.write(ctx, participantID, false)
}

func (t *Tracker) write(ctx context.Context, participantID string, online bool) {
	if participantID == "" {
		return
	}
	state := "offline"
	if online {
		state = "online"
	}
	if err := t.store.Set(ctx, channel.PresencePath(participantID), online); err != nil {
		metrics.PresenceWritesTotal.WithLabelValues(state, "failed").Inc()
		log.Printf("[presence] set %s=%v: %v", participantID, online, err)
		return
	}
	metrics.PresenceWritesTotal.WithLabelValues(state, "ok").Inc()
}

// Watch is a live feed of one participant's online flag. The current value
// is delivered first, then every change. A missing or malformed flag reads
// as offline.
type Watch struct {
	updates chan bool
	quit    chan struct{}
	done    chan struct{}
	sub     realtime.Subscription
	once    sync.Once
}

// Observe opens a presence watch for the participant.
func (t *Tracker) Observe(ctx context.Context, participantID string) (*Watch, error) {
	if participantID == "" {
		return nil, channel.ErrEmptyParticipant
	}
	sub, err := t.store.Subscribe(ctx, channel.PresencePath(participantID))
	if err != nil {
		return nil, fmt.Errorf("presence: observe %s: %w", participantID, err)
	}

	w := &Watch{
		updates: make(chan bool),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		sub:     sub,
	}
	go w.run()
	return w, nil
}

func (w *Watch) run() {
	defer close(w.done)
	defer close(w.updates)
	for snap := range w.sub.Updates() {
		online := decodeFlag(snap)
		select {
		case w.updates <- online:
		case <-w.quit:
			return
		}
	}
}

// Updates returns the flag channel. It is closed after Close.
func (w *Watch) Updates() <-chan bool {
	return w.updates
}

// Close tears the watch down. No value is delivered after Close returns,
// and closing performs no presence writes.
func (w *Watch) Close() {
	w.once.Do(func() {
		w.sub.Close()
		close(w.quit)
		<-w.done
	})
}

func decodeFlag(snap realtime.Snapshot) bool {
	if len(snap.Value) == 0 {
		return false
	}
	var online bool
	if err := json.Unmarshal(snap.Value, &online); err != nil {
		return false
	}
	return online
}
