package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/meetdating/chat-core/internal/chat"
	"github.com/meetdating/chat-core/internal/message"
	"github.com/meetdating/chat-core/internal/profile"
	"github.com/meetdating/chat-core/internal/protocol"
)

// opTimeout bounds individual store operations triggered by a client message.
const opTimeout = 5 * time.Second

// ChatHandler binds the protocol message types to the chat core. Each
// WebSocket connection carries at most one authenticated user and at most one
// open chat session; opening a new chat closes the previous one.
type ChatHandler struct {
	server   *Server
	chats    *chat.Controller
	roster   *chat.Roster
	profiles *profile.Store // nil when the profile directory is disabled

	mu     sync.Mutex
	states map[string]*connState // connection ID -> per-connection state
}

// connState is the per-connection application state, guarded by
// ChatHandler.mu. The reader goroutine and the heartbeat-driven disconnect
// path touch it concurrently.
type connState struct {
	userID  string
	session *chat.Session
}

// NewChatHandler creates a ChatHandler. profiles may be nil; deck requests
// then receive an error response.
func NewChatHandler(server *Server, chats *chat.Controller, roster *chat.Roster, profiles *profile.Store) *ChatHandler {
	return &ChatHandler{
		server:   server,
		chats:    chats,
		roster:   roster,
		profiles: profiles,
		states:   make(map[string]*connState),
	}
}

// Register wires the handler's methods into the dispatcher.
func (h *ChatHandler) Register(d *MessageDispatcher) {
	d.Register(protocol.TypeAuth, h.handleAuth)
	d.Register(protocol.TypeOpenChat, h.handleOpenChat)
	d.Register(protocol.TypeMessage, h.handleMessage)
	d.Register(protocol.TypeDeleteMessage, h.handleDeleteMessage)
	d.Register(protocol.TypePause, h.handlePause)
	d.Register(protocol.TypeResume, h.handleResume)
	d.Register(protocol.TypeCloseChat, h.handleCloseChat)
	d.Register(protocol.TypeRoster, h.handleRoster)
	d.Register(protocol.TypeDeck, h.handleDeck)
}

// OnDisconnect tears down the connection's chat session. Registered as the
// server's disconnect callback; it may fire from the heartbeat goroutine
// while the reader goroutine is still inside a handler.
func (h *ChatHandler) OnDisconnect(connID string) {
	h.mu.Lock()
	state, ok := h.states[connID]
	var session *chat.Session
	if ok {
		session = state.session
		state.session = nil
		delete(h.states, connID)
	}
	h.mu.Unlock()

	if session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		session.Stop(ctx)
	}
}

// stateLocked returns the connection's state, creating it on first use. It
// returns nil once the connection has left the manager, so a message racing
// the disconnect cannot resurrect state that OnDisconnect already tore down.
// Callers must hold h.mu.
func (h *ChatHandler) stateLocked(conn *Connection) *connState {
	if state, ok := h.states[conn.ID]; ok {
		return state
	}
	if h.server.conns.Get(conn.ID) == nil {
		return nil
	}
	state := &connState{}
	h.states[conn.ID] = state
	return state
}

// sessionFor returns the connection's current session, or nil.
func (h *ChatHandler) sessionFor(connID string) *chat.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if state, ok := h.states[connID]; ok {
		return state.session
	}
	return nil
}

// userFor returns the connection's authenticated user id, or "".
func (h *ChatHandler) userFor(connID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if state, ok := h.states[connID]; ok {
		return state.userID
	}
	return ""
}

// takeSession detaches the connection's session under the lock so the caller
// can stop it without holding h.mu.
func (h *ChatHandler) takeSession(connID string) *chat.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.states[connID]
	if !ok || state.session == nil {
		return nil
	}
	session := state.session
	state.session = nil
	return session
}

// stopSession stops and clears the connection's chat session, if any.
func (h *ChatHandler) stopSession(connID string) {
	session := h.takeSession(connID)
	if session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	session.Stop(ctx)
}

// handleAuth binds the connection to a user id. Re-authenticating as a
// different user closes any open chat session first.
func (h *ChatHandler) handleAuth(conn *Connection, msg interface{}) {
	auth := msg.(protocol.AuthMsg)
	if auth.UserID == "" {
		h.sendError(conn, "bad_auth", "user_id must not be empty")
		return
	}

	h.mu.Lock()
	state := h.stateLocked(conn)
	if state == nil {
		h.mu.Unlock()
		return
	}
	var prev *chat.Session
	if state.userID != "" && state.userID != auth.UserID {
		prev = state.session
		state.session = nil
	}
	state.userID = auth.UserID
	h.mu.Unlock()

	if prev != nil {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		prev.Stop(ctx)
	}
	log.Printf("ws: authenticated session=%s user=%s", conn.ID, auth.UserID)
}

// handleOpenChat opens a chat session with another participant. A failed
// subscription is surfaced to the client so it can retry by reopening.
func (h *ChatHandler) handleOpenChat(conn *Connection, msg interface{}) {
	open := msg.(protocol.OpenChatMsg)

	h.mu.Lock()
	state := h.stateLocked(conn)
	if state == nil {
		h.mu.Unlock()
		return
	}
	userID := state.userID
	// One session per connection: opening a new chat closes the old one.
	prev := state.session
	state.session = nil
	h.mu.Unlock()

	if userID == "" {
		h.sendError(conn, "unauthenticated", "authenticate before opening a chat")
		return
	}
	if prev != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), opTimeout)
		prev.Stop(stopCtx)
		cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	session, err := h.chats.Start(ctx, userID, open.OtherID)
	if err != nil {
		log.Printf("ws: open chat failed session=%s user=%s other=%s: %v",
			conn.ID, userID, open.OtherID, err)
		h.sendError(conn, "subscription_failed", "could not open chat, please retry")
		return
	}

	// Publish the session only if the connection survived the store round
	// trips. A disconnect during Start has already run OnDisconnect, and a
	// session stored past that point would never be stopped.
	h.mu.Lock()
	if current, ok := h.states[conn.ID]; !ok || current != state {
		h.mu.Unlock()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), opTimeout)
		session.Stop(stopCtx)
		stopCancel()
		return
	}
	state.session = session
	h.mu.Unlock()

	h.send(conn, protocol.TypeChatOpened, protocol.ChatOpenedMsg{
		ChannelID: session.ChannelID,
	})

	go h.pumpViews(conn, session)
	go h.pumpPresence(conn, session)
}

// pumpViews forwards each rebuilt message view (newest first) to the client.
// It exits when the session stops and its view channel closes.
func (h *ChatHandler) pumpViews(conn *Connection, session *chat.Session) {
	for view := range session.Views() {
		h.send(conn, protocol.TypeMessageList, protocol.MessageListMsg{
			ChannelID: session.ChannelID,
			Messages:  view,
		})
	}
}

// pumpPresence forwards the other participant's online flag to the client.
func (h *ChatHandler) pumpPresence(conn *Connection, session *chat.Session) {
	for online := range session.Online() {
		h.send(conn, protocol.TypePresence, protocol.PresenceMsg{
			UserID: session.Other,
			Online: online,
		})
	}
}

// handleMessage sends a text message within the open chat. A rejected write
// is reported with the original text so the client keeps it for retry.
func (h *ChatHandler) handleMessage(conn *Connection, msg interface{}) {
	cm := msg.(protocol.ChatMsg)

	session := h.sessionFor(conn.ID)
	if session == nil {
		h.sendError(conn, "no_chat", "no chat is open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := session.Send(ctx, cm.Text); err != nil {
		if errors.Is(err, message.ErrSendFailed) {
			h.send(conn, protocol.TypeSendFailed, protocol.SendFailedMsg{
				Text:   cm.Text,
				Reason: err.Error(),
			})
			return
		}
		log.Printf("ws: send failed session=%s: %v", conn.ID, err)
		h.sendError(conn, "send_error", "could not send message")
	}
}

// handleDeleteMessage removes a message from the open chat. Store failures
// are swallowed downstream, so there is no failure response.
func (h *ChatHandler) handleDeleteMessage(conn *Connection, msg interface{}) {
	del := msg.(protocol.DeleteMessageMsg)

	session := h.sessionFor(conn.ID)
	if session == nil {
		h.sendError(conn, "no_chat", "no chat is open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	session.Delete(ctx, del.MessageID)
}

// handlePause marks the user offline when the chat screen leaves the
// foreground.
func (h *ChatHandler) handlePause(conn *Connection, msg interface{}) {
	session := h.sessionFor(conn.ID)
	if session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	session.Pause(ctx)
}

// handleResume marks the user online when the chat screen returns to the
// foreground.
func (h *ChatHandler) handleResume(conn *Connection, msg interface{}) {
	session := h.sessionFor(conn.ID)
	if session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	session.Resume(ctx)
}

// handleCloseChat stops the open chat session.
func (h *ChatHandler) handleCloseChat(conn *Connection, msg interface{}) {
	h.stopSession(conn.ID)
	h.send(conn, protocol.TypeChatClosed, protocol.ChatClosedMsg{})
}

// handleRoster returns the conversation previews for the requested partners.
func (h *ChatHandler) handleRoster(conn *Connection, msg interface{}) {
	req := msg.(protocol.RosterMsg)

	userID := h.userFor(conn.ID)
	if userID == "" {
		h.sendError(conn, "unauthenticated", "authenticate before requesting the roster")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	entries := h.roster.Entries(ctx, userID, req.PartnerIDs)
	h.send(conn, protocol.TypeRosterList, protocol.RosterListMsg{Entries: entries})
}

// handleDeck returns the profile deck for the authenticated user, optionally
// filtered to one location.
func (h *ChatHandler) handleDeck(conn *Connection, msg interface{}) {
	req := msg.(protocol.DeckMsg)

	userID := h.userFor(conn.ID)
	if userID == "" {
		h.sendError(conn, "unauthenticated", "authenticate before requesting the deck")
		return
	}
	if h.profiles == nil {
		h.sendError(conn, "profiles_disabled", "profile directory is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		deck []profile.Profile
		err  error
	)
	if req.Location != "" {
		deck, err = h.profiles.ByLocation(ctx, userID, req.Location)
	} else {
		deck, err = h.profiles.Deck(ctx, userID)
	}
	if err != nil {
		log.Printf("ws: deck failed session=%s: %v", conn.ID, err)
		h.sendError(conn, "deck_error", "could not load profiles")
		return
	}
	h.send(conn, protocol.TypeDeckList, protocol.DeckListMsg{Profiles: deck})
}

// send builds a server message and writes it through the server so the write
// deadline applies. Failures are logged; the reader goroutine notices a dead
// connection on its own.
func (h *ChatHandler) send(conn *Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("ws: failed to build %s message session=%s: %v", msgType, conn.ID, err)
		return
	}
	if err := h.server.SendMessage(conn.ID, data); err != nil {
		log.Printf("ws: failed to send %s message session=%s: %v", msgType, conn.ID, err)
	}
}

func (h *ChatHandler) sendError(conn *Connection, code, text string) {
	h.send(conn, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: text})
}
