// ABOUTME: Wire frame envelope for the realtime channel.
// ABOUTME: One flat JSON struct covers every client and server frame type.

package transport

import (
	"time"

	"github.com/oakmart/chatcore/internal/chat"
)

// Frame types sent by the client.
const (
	FrameRegisterIdentity = "register_identity"
	FrameJoinRoom         = "join_room"
	FrameLeaveRoom        = "leave_room"
	FrameTypingStarted    = "typing_started"
	FrameTypingStopped    = "typing_stopped"
	FrameUserMessage      = "user_message"
)

// Frame types delivered by the server.
const (
	FrameMessageDelivered   = "message_delivered"
	FrameCounterpartyTyping = "counterparty_typing"
	FrameSendAcknowledged   = "send_acknowledged"
)

// Frame is the JSON envelope for both directions of the realtime channel.
// Fields are populated per frame type; unused fields are omitted on the
// wire.
type Frame struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Kind      chat.Kind     `json:"kind,omitempty"`
	UserID    string        `json:"userId,omitempty"`
	Text      string        `json:"text,omitempty"`
	IsTyping  bool          `json:"isTyping,omitempty"`
	Timestamp time.Time     `json:"timestamp,omitzero"`
	Message   *chat.Message `json:"message,omitempty"`
	MessageID string        `json:"messageId,omitempty"`
}

// JoinRoom builds the membership frame for a session of the given kind.
func JoinRoom(sessionID string, kind chat.Kind) Frame {
	return Frame{Type: FrameJoinRoom, SessionID: sessionID, Kind: kind}
}

// LeaveRoom builds the frame that revokes membership.
func LeaveRoom(sessionID string, kind chat.Kind) Frame {
	return Frame{Type: FrameLeaveRoom, SessionID: sessionID, Kind: kind}
}

// Typing builds a typing_started or typing_stopped frame.
func Typing(sessionID, userID string, started bool) Frame {
	t := FrameTypingStopped
	if started {
		t = FrameTypingStarted
	}
	return Frame{Type: t, SessionID: sessionID, UserID: userID}
}
