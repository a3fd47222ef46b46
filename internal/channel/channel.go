// Package channel derives the stable conversation identifier shared by two
// chat participants. The id is symmetric in its inputs, so both sides of a
// conversation always address the same message collection.
package channel

import (
	"errors"
	"fmt"
)

// Separator joins the two sorted participant ids. Participant ids come from
// the identity provider and never contain it.
const Separator = "_"

// ErrEmptyParticipant is returned when either participant id is empty.
// Callers treat this as "no channel" and render an empty chat view rather
// than opening a subscription.
var ErrEmptyParticipant = errors.New("channel: empty participant id")

// ID returns the channel id for a conversation between a and b. The two ids
// are ordered lexicographically before joining, so ID(a, b) == ID(b, a).
func ID(a, b string) (string, error) {
	if a == "" || b == "" {
		return "", ErrEmptyParticipant
	}
	if b < a {
		a, b = b, a
	}
	return a + Separator + b, nil
}

// MessagesPath returns the realtime store path holding the channel's message
// collection.
func MessagesPath(channelID string) string {
	return fmt.Sprintf("chats/%s/messages", channelID)
}

// MessagePath returns the realtime store path of a single message.
func MessagePath(channelID, messageID string) string {
	return fmt.Sprintf("chats/%s/messages/%s", channelID, messageID)
}

// PresencePath returns the realtime store path of a participant's online flag.
func PresencePath(participantID string) string {
	return fmt.Sprintf("users/%s/online", participantID)
}
