// Package protocol defines the WebSocket message types and structures used
// for communication between the mobile client and the chat server. All
// messages are serialized as JSON and follow a consistent envelope format
// with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/meetdating/chat-core/internal/chat"
	"github.com/meetdating/chat-core/internal/message"
	"github.com/meetdating/chat-core/internal/profile"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeAuth          = "auth"
	TypeOpenChat      = "open_chat"
	TypeMessage       = "message"
	TypeDeleteMessage = "delete_message"
	TypePause         = "pause"
	TypeResume        = "resume"
	TypeCloseChat     = "close_chat"
	TypeRoster        = "roster"
	TypeDeck          = "deck"
	TypePing          = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated = "session_created"
	TypeChatOpened     = "chat_opened"
	TypeMessageList    = "message_list"
	TypePresence       = "presence"
	TypeSendFailed     = "send_failed"
	TypeChatClosed     = "chat_closed"
	TypeRosterList     = "roster_list"
	TypeDeckList       = "deck_list"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Envelope, used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// AuthMsg binds the connection to a participant id issued by the identity
// provider. Verification happens upstream; the server trusts the id here.
type AuthMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// OpenChatMsg opens a chat session with another participant. Opening a new
// chat closes the previous session on this connection.
type OpenChatMsg struct {
	Type    string `json:"type"`
	OtherID string `json:"other_id"`
}

// ChatMsg is a text message sent by the client within the open chat.
type ChatMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DeleteMessageMsg removes a message from the open chat by id.
type DeleteMessageMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// PauseMsg reports that the chat screen left the foreground.
type PauseMsg struct {
	Type string `json:"type"`
}

// ResumeMsg reports that the chat screen returned to the foreground.
type ResumeMsg struct {
	Type string `json:"type"`
}

// CloseChatMsg closes the open chat session.
type CloseChatMsg struct {
	Type string `json:"type"`
}

// RosterMsg requests the conversation list previews for a set of partners.
type RosterMsg struct {
	Type       string   `json:"type"`
	PartnerIDs []string `json:"partner_ids"`
}

// DeckMsg requests the profile deck (everyone but the requester). A
// non-empty Location restricts the deck to profiles in that location.
type DeckMsg struct {
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new connection is
// established.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ChatOpenedMsg confirms an open_chat request. An empty ChannelID marks a
// degenerate session (one of the participant ids was empty).
type ChatOpenedMsg struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
}

// MessageListMsg carries the full display view of the open chat, newest
// first. It replaces any previously delivered list wholesale.
type MessageListMsg struct {
	Type      string            `json:"type"`
	ChannelID string            `json:"channel_id"`
	Messages  []message.Message `json:"messages"`
}

// PresenceMsg reports the other participant's online flag.
type PresenceMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// SendFailedMsg reports a rejected message write. Text echoes the original
// input so the client can keep it in the compose box for retry.
type SendFailedMsg struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// ChatClosedMsg confirms that the chat session was closed.
type ChatClosedMsg struct {
	Type string `json:"type"`
}

// RosterListMsg carries the conversation list previews.
type RosterListMsg struct {
	Type    string       `json:"type"`
	Entries []chat.Entry `json:"entries"`
}

// DeckListMsg carries the profile deck.
type DeckListMsg struct {
	Type     string            `json:"type"`
	Profiles []profile.Profile `json:"profiles"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeAuth:
		var m AuthMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeOpenChat:
		var m OpenChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDeleteMessage:
		var m DeleteMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePause:
		var m PauseMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeResume:
		var m ResumeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCloseChat:
		var m CloseChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoster:
		var m RosterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDeck:
		var m DeckMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the Server*Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
