package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/meetdating/chat-core/internal/channel"
	"github.com/meetdating/chat-core/internal/message"
	"github.com/meetdating/chat-core/internal/realtime"
)

// Roster builds the conversation list: for each chat partner, the most
// recent message of the shared channel as a preview. Reads are one-shot;
// the list screen refetches rather than holding subscriptions open.
type Roster struct {
	store realtime.Store
}

// NewRoster creates a Roster on top of the given store.
func NewRoster(store realtime.Store) *Roster {
	return &Roster{store: store}
}

// Entry is one row of the conversation list.
type Entry struct {
	PartnerID   string           `json:"partnerId"`
	LastMessage *message.Message `json:"lastMessage,omitempty"`
}

// LastMessage returns the newest message between me and partner, or nil for
// an empty channel.
func (r *Roster) LastMessage(ctx context.Context, me, partner string) (*message.Message, error) {
	cid, err := channel.ID(me, partner)
	if err != nil {
		return nil, err
	}
	snap, err := r.store.Get(ctx, channel.MessagesPath(cid))
	if err != nil {
		return nil, fmt.Errorf("chat: last message %s: %w", cid, err)
	}
	view := message.Rebuild(snap)
	if len(view) == 0 {
		return nil, nil
	}
	last := view[len(view)-1]
	return &last, nil
}

// Entries returns one entry per partner. Partners whose channel cannot be
// read are listed without a preview rather than failing the whole list.
func (r *Roster) Entries(ctx context.Context, me string, partners []string) []Entry {
	entries := make([]Entry, 0, len(partners))
	for _, partner := range partners {
		entry := Entry{PartnerID: partner}
		last, err := r.LastMessage(ctx, me, partner)
		if err != nil {
			log.Printf("[chat] roster preview me=%s partner=%s: %v", me, partner, err)
		} else {
			entry.LastMessage = last
		}
		entries = append(entries, entry)
	}
	return entries
}
