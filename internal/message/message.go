// Package message implements the ordered message stream of a chat channel.
// The store holds messages under chats/{channelId}/messages keyed by push
// id; the local view is rebuilt wholesale from every snapshot and kept in
// ascending timestamp order. Rebuilding on every event trades O(n) work per
// update for not having an incremental merge to get wrong; conversations
// here are small.
package message

import (
	"encoding/json"
	"log"
	"sort"

	"github.com/meetdating/chat-core/internal/realtime"
)

// Message is a single chat message. Field names match the mobile client's
// wire format. Once written a message never changes; the only mutation is
// full removal.
type Message struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Timestamp  int64  `json:"timestamp"` // unix milliseconds, client clock
}

// Rebuild materializes the ordered view from a collection snapshot. Children
// are decoded in store insertion order (push ids sort by creation time),
// then stably sorted by timestamp, so equal timestamps keep insertion order.
// Malformed children are dropped, not fatal.
func Rebuild(snap realtime.Snapshot) []Message {
	view := make([]Message, 0, len(snap.Children))
	for _, key := range snap.Keys {
		var m Message
		if err := json.Unmarshal(snap.Children[key], &m); err != nil {
			log.Printf("[message] drop malformed child %s/%s: %v", snap.Path, key, err)
			continue
		}
		if m.ID == "" {
			m.ID = key
		}
		view = append(view, m)
	}
	sort.SliceStable(view, func(i, j int) bool {
		return view[i].Timestamp < view[j].Timestamp
	})
	return view
}

// Reversed returns the view newest-first for rendering. The canonical order
// stays ascending; this is purely the display order.
func Reversed(view []Message) []Message {
	out := make([]Message, len(view))
	for i, m := range view {
		out[len(view)-1-i] = m
	}
	return out
}
