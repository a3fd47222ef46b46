package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meetdating/chat-core/internal/channel"
	"github.com/meetdating/chat-core/internal/metrics"
	"github.com/meetdating/chat-core/internal/realtime"
)

// ErrSendFailed reports that the store rejected a message write. The message
// never entered the local view; callers keep the original text so the user
// can retry.
var ErrSendFailed = errors.New("message: send failed")

// Stream is the live, ordered message view of one channel. It is valid
// between Open and Close; the session controller guarantees Send and Delete
// are only called in between.
type Stream struct {
	store     realtime.Store
	channelID string
	sub       realtime.Subscription
	now       func() int64 // millis

	mu   sync.Mutex
	view []Message

	updates chan []Message
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Open subscribes to the channel's message collection and starts rebuilding
// the view on every snapshot. The initial snapshot is processed before the
// first update is delivered.
func Open(ctx context.Context, store realtime.Store, channelID string) (*Stream, error) {
	if channelID == "" {
		return nil, channel.ErrEmptyParticipant
	}
	sub, err := store.Subscribe(ctx, channel.MessagesPath(channelID))
	if err != nil {
		return nil, fmt.Errorf("message: open %s: %w", channelID, err)
	}

	s := &Stream{
		store:     store,
		channelID: channelID,
		sub:       sub,
		now:       func() int64 { return time.Now().UnixMilli() },
		updates:   make(chan []Message),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Stream) run() {
	defer close(s.done)
	defer close(s.updates)
	for snap := range s.sub.Updates() {
		start := time.Now()
		view := Rebuild(snap)
		metrics.RebuildLatency.Observe(time.Since(start).Seconds())
		metrics.RebuildSize.Observe(float64(len(view)))

		s.mu.Lock()
		s.view = view
		s.mu.Unlock()

		select {
		case s.updates <- view:
		case <-s.quit:
			return
		}
	}
}

// Updates returns the ascending view channel. Each element replaces the
// previous view wholesale. The channel closes after Close.
func (s *Stream) Updates() <-chan []Message {
	return s.updates
}

// View returns a copy of the current ascending view.
func (s *Stream) View() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.view...)
}

// Send writes a new message to the channel. Blank or whitespace-only text
// is a silent no-op: no store write, no view change, no error. Content that
// fails validation, or a store rejection, yields ErrSendFailed; in both
// cases the view is untouched.
func (s *Stream) Send(ctx context.Context, senderID, receiverID, text string) error {
	if strings.TrimSpace(text) == "" {
		metrics.MessagesTotal.WithLabelValues("blank").Inc()
		return nil
	}
	if err := Validate(text); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	msg := Message{
		Text:       text,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Timestamp:  s.now(),
	}
	if _, err := s.store.Push(ctx, channel.MessagesPath(s.channelID), msg); err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

// Delete removes a message by id. Deleting an id that is already gone is
// not an error; deletion is permanent, there is no tombstone.
func (s *Stream) Delete(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}
	if err := s.store.Remove(ctx, channel.MessagePath(s.channelID, messageID)); err != nil {
		return fmt.Errorf("message: delete %s: %w", messageID, err)
	}
	metrics.MessagesTotal.WithLabelValues("deleted").Inc()
	return nil
}

// Close cancels the subscription. No update is delivered after Close
// returns; a snapshot from an in-flight round trip is discarded.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.sub.Close()
		close(s.quit)
		<-s.done
	})
}
