// Package chat composes channel addressing, the message stream, and
// presence tracking into the screen-level session contract: open a session
// for (me, other), render ordered messages newest-first, send, delete,
// observe the other side's presence, and close cleanly exactly once.
package chat

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/meetdating/chat-core/internal/channel"
	"github.com/meetdating/chat-core/internal/message"
	"github.com/meetdating/chat-core/internal/metrics"
	"github.com/meetdating/chat-core/internal/presence"
	"github.com/meetdating/chat-core/internal/realtime"
)

// Controller opens chat sessions on top of a realtime store.
type Controller struct {
	store    realtime.Store
	presence *presence.Tracker
}

// NewController creates a Controller.
func NewController(store realtime.Store, tracker *presence.Tracker) *Controller {
	return &Controller{store: store, presence: tracker}
}

// Session is one open chat screen. Views carries the display view
// (newest-first), Online the other participant's presence flag. All store
// side effects stop when Stop returns.
type Session struct {
	Me        string
	Other     string
	ChannelID string

	stream  *message.Stream
	watch   *presence.Watch
	tracker *presence.Tracker

	views      chan []message.Message
	online     chan bool
	quit       chan struct{}
	viewsDone  chan struct{}
	onlineDone chan struct{}

	degenerate bool
	stopped    atomic.Bool
	stopOnce   sync.Once
}

// Start opens a session between me and other. An empty participant id on
// either side yields a degenerate session: an empty chat view whose
// operations are all no-ops, never a crash. Subscription failures are
// returned so the caller can surface them and retry by reopening.
func (c *Controller) Start(ctx context.Context, me, other string) (*Session, error) {
	cid, err := channel.ID(me, other)
	if err != nil {
		log.Printf("[chat] degenerate session me=%q other=%q: %v", me, other, err)
		return newDegenerateSession(me, other), nil
	}

	stream, err := message.Open(ctx, c.store, cid)
	if err != nil {
		return nil, err
	}
	watch, err := c.presence.Observe(ctx, other)
	if err != nil {
		stream.Close()
		return nil, err
	}

	s := &Session{
		Me:         me,
		Other:      other,
		ChannelID:  cid,
		stream:     stream,
		watch:      watch,
		tracker:    c.presence,
		views:      make(chan []message.Message),
		online:     make(chan bool),
		quit:       make(chan struct{}),
		viewsDone:  make(chan struct{}),
		onlineDone: make(chan struct{}),
	}

	go s.forwardViews()
	go s.forwardOnline()

	// Opening the screen counts as entering the foreground.
	c.presence.SetOnline(ctx, me)
	metrics.ActiveSessions.Inc()
	log.Printf("[chat] session open me=%s other=%s channel=%s", me, other, cid)
	return s, nil
}

func newDegenerateSession(me, other string) *Session {
	s := &Session{
		Me:         me,
		Other:      other,
		views:      make(chan []message.Message),
		online:     make(chan bool),
		degenerate: true,
	}
	close(s.views)
	close(s.online)
	return s
}

// forwardViews reverses each ascending view for display and pushes it to
// the UI channel.
func (s *Session) forwardViews() {
	defer close(s.viewsDone)
	defer close(s.views)
	for view := range s.stream.Updates() {
		select {
		case s.views <- message.Reversed(view):
		case <-s.quit:
			return
		}
	}
}

func (s *Session) forwardOnline() {
	defer close(s.onlineDone)
	defer close(s.online)
	for v := range s.watch.Updates() {
		select {
		case s.online <- v:
		case <-s.quit:
			return
		}
	}
}

// Views returns the newest-first message view channel. It closes when the
// session stops.
func (s *Session) Views() <-chan []message.Message {
	return s.views
}

// Online returns the other participant's presence channel. It closes when
// the session stops.
func (s *Session) Online() <-chan bool {
	return s.online
}

// Send writes a message from me to the other participant. Blank text is a
// silent no-op; message.ErrSendFailed reports a rejected write with the
// caller keeping the text for retry.
func (s *Session) Send(ctx context.Context, text string) error {
	if s.degenerate || s.stopped.Load() {
		return nil
	}
	return s.stream.Send(ctx, s.Me, s.Other, text)
}

// Delete removes a message by id. Failures are logged and swallowed;
// deletion is a convenience action, not safety-critical.
func (s *Session) Delete(ctx context.Context, messageID string) {
	if s.degenerate || s.stopped.Load() {
		return
	}
	if err := s.stream.Delete(ctx, messageID); err != nil {
		log.Printf("[chat] delete %s/%s: %v", s.ChannelID, messageID, err)
	}
}

// Resume marks me online; the UI calls it when the chat screen enters the
// foreground.
func (s *Session) Resume(ctx context.Context) {
	if s.degenerate || s.stopped.Load() {
		return
	}
	s.tracker.SetOnline(ctx, s.Me)
}

// Pause marks me offline; the UI calls it when the screen is backgrounded.
func (s *Session) Pause(ctx context.Context) {
	if s.degenerate || s.stopped.Load() {
		return
	}
	s.tracker.SetOffline(ctx, s.Me)
}

// Stop closes the message stream and presence watch and marks me offline.
// The second and later calls are no-ops: no extra store writes, no panic.
// When Stop returns, no further view or presence update is delivered.
func (s *Session) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if s.degenerate {
			return
		}
		s.stream.Close()
		s.watch.Close()
		close(s.quit)
		<-s.viewsDone
		<-s.onlineDone
		s.tracker.SetOffline(ctx, s.Me)
		metrics.ActiveSessions.Dec()
		log.Printf("[chat] session closed me=%s channel=%s", s.Me, s.ChannelID)
	})
}
