// ABOUTME: Join/leave state machine scoping the shared transport to active rooms.
// ABOUTME: Intent survives disconnects; reconnect and focus-regain both re-assert joins.

package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oakmart/chatcore/internal/chat"
	"github.com/oakmart/chatcore/internal/transport"
)

// Phase is the membership state for one (session, kind) pair.
type Phase int

const (
	// PhaseUnjoined: the screen does not care about the room.
	PhaseUnjoined Phase = iota
	// PhaseJoinRequested: intent recorded, join not yet effective on the
	// wire (transport down, or send failed).
	PhaseJoinRequested
	// PhaseJoined: join frame delivered on the current connection.
	PhaseJoined
)

func (p Phase) String() string {
	switch p {
	case PhaseUnjoined:
		return "unjoined"
	case PhaseJoinRequested:
		return "join-requested"
	case PhaseJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// Wire is the slice of the transport client the coordinator needs.
type Wire interface {
	Send(ctx context.Context, f transport.Frame) error
	Connected() bool
}

// Key identifies one room.
type Key struct {
	SessionID string
	Kind      chat.Kind
}

// Coordinator owns room membership intent. It never touches the transport's
// connection lifecycle, only its room scope.
type Coordinator struct {
	wire   Wire
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[Key]Phase
}

// NewCoordinator creates a coordinator over the given wire.
func NewCoordinator(wire Wire, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		wire:   wire,
		logger: logger.With("component", "room"),
		rooms:  make(map[Key]Phase),
	}
}

// Activate records intent for a room and joins immediately when the
// transport is up. Idempotent: activating an already-joined room re-emits
// the join rather than assuming it still holds.
func (c *Coordinator) Activate(ctx context.Context, sessionID string, kind chat.Kind) {
	key := Key{SessionID: sessionID, Kind: kind}

	c.mu.Lock()
	c.rooms[key] = PhaseJoinRequested
	c.mu.Unlock()

	c.tryJoin(ctx, key)
}

// Deactivate drops intent for a room, emitting a leave if the join was
// effective. Called on screen deactivation or session change.
func (c *Coordinator) Deactivate(ctx context.Context, sessionID string, kind chat.Kind) {
	key := Key{SessionID: sessionID, Kind: kind}

	c.mu.Lock()
	phase, ok := c.rooms[key]
	delete(c.rooms, key)
	c.mu.Unlock()

	if !ok {
		return
	}
	if phase == PhaseJoined {
		if err := c.wire.Send(ctx, transport.LeaveRoom(sessionID, kind)); err != nil {
			// The server drops dead subscriptions on disconnect anyway.
			c.logger.Debug("leave not delivered", "session_id", sessionID, "kind", kind, "error", err)
		}
	}
	c.logger.Info("room deactivated", "session_id", sessionID, "kind", kind)
}

// HandleConnected re-emits joins for every room with recorded intent. Wired
// to the transport's connected event; identity registration has already
// happened by the time it fires.
func (c *Coordinator) HandleConnected(ctx context.Context) {
	for _, key := range c.keys() {
		c.tryJoin(ctx, key)
	}
}

// HandleDisconnected downgrades effective joins to retained intent.
func (c *Coordinator) HandleDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, phase := range c.rooms {
		if phase == PhaseJoined {
			c.rooms[key] = PhaseJoinRequested
		}
	}
}

// FocusRegained re-asserts membership for every active room even without a
// disconnect. Switching conversation kinds can implicitly drop the first
// room's subscription server-side, so focus-regain means "re-assert", not
// "connect if missing".
func (c *Coordinator) FocusRegained(ctx context.Context) {
	for _, key := range c.keys() {
		c.tryJoin(ctx, key)
	}
}

// Phase reports the membership phase for a room.
func (c *Coordinator) Phase(sessionID string, kind chat.Kind) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[Key{SessionID: sessionID, Kind: kind}]
}

// tryJoin emits a join when the transport is up, keeping intent otherwise.
func (c *Coordinator) tryJoin(ctx context.Context, key Key) {
	c.mu.Lock()
	if _, ok := c.rooms[key]; !ok {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if !c.wire.Connected() {
		return
	}

	if err := c.wire.Send(ctx, transport.JoinRoom(key.SessionID, key.Kind)); err != nil {
		c.logger.Warn("join not delivered, intent retained",
			"session_id", key.SessionID,
			"kind", key.Kind,
			"error", err)
		return
	}

	c.mu.Lock()
	if _, ok := c.rooms[key]; ok {
		c.rooms[key] = PhaseJoined
	}
	c.mu.Unlock()

	c.logger.Info("room joined", "session_id", key.SessionID, "kind", key.Kind)
}

func (c *Coordinator) keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.rooms))
	for key := range c.rooms {
		keys = append(keys, key)
	}
	return keys
}
