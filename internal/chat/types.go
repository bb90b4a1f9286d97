// ABOUTME: Domain types for conversations, sessions, and transcript messages.
// ABOUTME: Shared by the gateway, transport, reconciliation engine, and controllers.

package chat

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which conversation a session belongs to. The assistant
// and staff conversations share the same client machinery but are backed
// by different rooms on the server.
type Kind string

const (
	KindAssistant Kind = "assistant"
	KindStaff     Kind = "staff"
)

// Valid reports whether k is a known conversation kind.
func (k Kind) Valid() bool {
	return k == KindAssistant || k == KindStaff
}

// SessionStatus is the server-owned lifecycle state of a session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionClosed   SessionStatus = "closed"
	SessionArchived SessionStatus = "archived"
)

// Session identifies one conversation thread. The server is the durable
// owner; the client holds sessions in memory only and never mutates them
// beyond requesting a close.
type Session struct {
	ID      string        `json:"sessionId"`
	Kind    Kind          `json:"kind"`
	Status  SessionStatus `json:"status"`
	Resumed bool          `json:"resumed"`
}

// Origin records who authored a transcript message.
type Origin string

const (
	OriginLocalUser  Origin = "local-user"
	OriginRemoteUser Origin = "remote-user"
	OriginAssistant  Origin = "assistant"
	OriginStaff      Origin = "staff"
)

// UserSide reports whether the origin is the user rather than the
// counter-party. The reconciliation heuristic compares this polarity
// instead of exact origins, because an echo of the user's own send comes
// back from the room broadcast tagged remote-user.
func (o Origin) UserSide() bool {
	return o == OriginLocalUser || o == OriginRemoteUser
}

// DeliveryState tracks an outbound message through the optimistic-send
// protocol.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// Message is one transcript entry.
//
// LocalKey is the reconciliation key: assigned once at creation, unique for
// the lifetime of the process, and never reused. ServerID is empty until the
// server acknowledges the message. At most one Message with a given LocalKey
// exists in a transcript, and a ServerID, once known, is associated with
// exactly one LocalKey.
type Message struct {
	ServerID  string        `json:"id,omitempty"`
	LocalKey  string        `json:"localKey,omitempty"`
	Text      string        `json:"text"`
	Origin    Origin        `json:"origin"`
	CreatedAt time.Time     `json:"createdAt"`
	Delivery  DeliveryState `json:"delivery,omitempty"`

	// SuggestedReplies carries assistant follow-up prompts; empty for
	// other origins.
	SuggestedReplies []string `json:"suggestedReplies,omitempty"`

	// StaffName tags staff messages with the responding agent's display
	// name; empty for other origins.
	StaffName string `json:"staffName,omitempty"`
}

// NewLocalKey allocates a fresh reconciliation key.
func NewLocalKey() string {
	return uuid.New().String()
}

// NewPendingMessage builds the optimistic local entry for a just-sent text.
func NewPendingMessage(text string) Message {
	return Message{
		LocalKey:  NewLocalKey(),
		Text:      text,
		Origin:    OriginLocalUser,
		CreatedAt: time.Now(),
		Delivery:  DeliveryPending,
	}
}
