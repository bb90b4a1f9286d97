// ABOUTME: Append-only deduplicated transcript engine, one instance per session.
// ABOUTME: Reconciles optimistic inserts, send confirmations, and push deliveries.

package transcript

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sync"

	"github.com/oakmart/chatcore/internal/chat"
	"github.com/oakmart/chatcore/internal/dedupe"
)

// ErrUnknownKey is returned when no transcript entry carries the local key.
var ErrUnknownKey = errors.New("no transcript entry for local key")

const (
	defaultDedupWindow = 5 * time.Second
	defaultSeenTTL     = 2 * time.Minute
	defaultSeenMax     = 512

	// heuristicScan bounds how far back the content heuristic looks.
	// Echoes land near the tail; old entries cannot match the time window
	// anyway.
	heuristicScan = 50
)

// Options tunes an Engine. Zero values use the defaults.
type Options struct {
	// DedupWindow is the tolerance for the content-equality heuristic.
	DedupWindow time.Duration
	// SeenTTL and SeenMax bound the transient seen-id set.
	SeenTTL time.Duration
	SeenMax int
	Logger  *slog.Logger
	// OnChange, when set, fires after every mutation that altered the
	// transcript. Called outside the engine lock.
	OnChange func()
}

// Engine holds the ordered transcript for one session. All mutating
// operations serialize on an internal mutex, so the duplicate-test-then-
// insert of a merge is atomic with respect to other merges. The optimistic
// insert and its later confirmation are two separate serialized steps; the
// local key pairing keeps them consistent across the gap.
type Engine struct {
	kind   chat.Kind
	window time.Duration
	logger *slog.Logger
	notify func()

	mu       sync.Mutex
	entries  []chat.Message
	byLocal  map[string]int    // local key -> index in entries
	byServer map[string]string // server id -> local key
	seen     *dedupe.Cache
}

// New creates an empty transcript engine for a session of the given kind.
func New(kind chat.Kind, opts Options) *Engine {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = defaultDedupWindow
	}
	if opts.SeenTTL <= 0 {
		opts.SeenTTL = defaultSeenTTL
	}
	if opts.SeenMax <= 0 {
		opts.SeenMax = defaultSeenMax
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		kind:     kind,
		window:   opts.DedupWindow,
		logger:   logger.With("component", "transcript", "kind", kind),
		notify:   opts.OnChange,
		byLocal:  make(map[string]int),
		byServer: make(map[string]string),
		seen:     dedupe.New(opts.SeenTTL, opts.SeenMax),
	}
}

// Seed replaces the transcript with server history. Entries without a local
// key are assigned one, and entries with a server id arrive confirmed.
// Duplicate server ids within the seed are collapsed.
func (e *Engine) Seed(history []chat.Message) {
	e.mu.Lock()
	e.entries = e.entries[:0]
	e.byLocal = make(map[string]int, len(history))
	e.byServer = make(map[string]string, len(history))

	for _, msg := range history {
		if msg.ServerID != "" {
			if _, dup := e.byServer[msg.ServerID]; dup {
				continue
			}
		}
		if msg.LocalKey == "" {
			msg.LocalKey = chat.NewLocalKey()
		}
		if msg.Delivery == "" {
			msg.Delivery = chat.DeliveryConfirmed
		}
		e.appendLocked(msg)
	}
	e.mu.Unlock()

	e.changed()
}

// AppendPending inserts an optimistic local entry at the tail and returns
// it. No I/O, no blocking; the pending entry is visible immediately.
func (e *Engine) AppendPending(text string) chat.Message {
	msg := chat.NewPendingMessage(text)

	e.mu.Lock()
	e.appendLocked(msg)
	e.mu.Unlock()

	e.changed()
	return msg
}

// Confirm resolves a pending entry: the message flips to confirmed, adopts
// the server id and server timestamp, and keeps its transcript position.
func (e *Engine) Confirm(localKey string, confirmed *chat.Message) error {
	e.mu.Lock()
	idx, ok := e.byLocal[localKey]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, localKey)
	}

	entry := &e.entries[idx]
	entry.Delivery = chat.DeliveryConfirmed
	if confirmed != nil {
		if confirmed.ServerID != "" {
			e.adoptServerIDLocked(localKey, confirmed.ServerID)
			entry = &e.entries[e.byLocal[localKey]]
			entry.ServerID = confirmed.ServerID
		}
		if !confirmed.CreatedAt.IsZero() {
			entry.CreatedAt = confirmed.CreatedAt
		}
	}
	e.mu.Unlock()

	e.changed()
	return nil
}

// Fail marks a pending entry failed. The entry stays visible so the user
// can retry or discard explicitly; it is never silently removed.
func (e *Engine) Fail(localKey string) error {
	return e.setDelivery(localKey, chat.DeliveryFailed)
}

// Retry flips a failed entry back to pending in place, keeping its original
// transcript position for the re-driven send.
func (e *Engine) Retry(localKey string) error {
	return e.setDelivery(localKey, chat.DeliveryPending)
}

// MergeRemote merges a push-delivered message. Returns true when the
// message was appended, false when it was recognized as a duplicate and
// discarded. The incoming server id is recorded in the seen set before any
// further work, closing the race where two copies of the same push frame
// arrive back-to-back.
func (e *Engine) MergeRemote(msg chat.Message) bool {
	e.mu.Lock()

	if msg.ServerID != "" {
		if e.seen.CheckAndMark("push:" + msg.ServerID) {
			e.mu.Unlock()
			e.suppress("seen-set", msg.ServerID)
			return false
		}
		if _, known := e.byServer[msg.ServerID]; known {
			e.mu.Unlock()
			e.suppress("server-id", msg.ServerID)
			return false
		}
	}

	if key, ok := e.matchHeuristicLocked(msg); ok {
		// An id-less echo of an existing entry; adopt the id so later
		// copies fail the exact test too.
		if msg.ServerID != "" {
			e.adoptServerIDLocked(key, msg.ServerID)
		}
		e.mu.Unlock()
		e.suppress("content-heuristic", msg.ServerID)
		return false
	}

	if msg.LocalKey == "" {
		msg.LocalKey = chat.NewLocalKey()
	}
	if msg.Delivery == "" {
		msg.Delivery = chat.DeliveryConfirmed
	}
	e.appendLocked(msg)
	e.mu.Unlock()

	e.changed()
	return true
}

// NoteAck records a server acknowledgement id in the seen set so the room
// broadcast echo of our own send is discarded even before the gateway
// confirmation lands. The optimistic entry already represents the message.
func (e *Engine) NoteAck(serverID string) {
	if serverID == "" {
		return
	}
	e.mu.Lock()
	e.seen.Mark("push:" + serverID)
	e.mu.Unlock()
}

// Messages returns a snapshot of the transcript in append order.
func (e *Engine) Messages() []chat.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]chat.Message, len(e.entries))
	copy(out, e.entries)
	return out
}

// Message returns the entry for a local key.
func (e *Engine) Message(localKey string) (chat.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.byLocal[localKey]
	if !ok {
		return chat.Message{}, false
	}
	return e.entries[idx], true
}

// Len returns the number of transcript entries.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

func (e *Engine) setDelivery(localKey string, state chat.DeliveryState) error {
	e.mu.Lock()
	idx, ok := e.byLocal[localKey]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, localKey)
	}
	e.entries[idx].Delivery = state
	e.mu.Unlock()

	e.changed()
	return nil
}

// appendLocked adds msg at the tail and indexes it. Must hold mu.
func (e *Engine) appendLocked(msg chat.Message) {
	e.entries = append(e.entries, msg)
	e.byLocal[msg.LocalKey] = len(e.entries) - 1
	if msg.ServerID != "" {
		e.byServer[msg.ServerID] = msg.LocalKey
	}
}

// adoptServerIDLocked binds serverID to localKey, enforcing the invariant
// that a server id maps to exactly one local key. If a push delivery
// already appended its own copy under a different key, that copy is removed
// and the original entry keeps its transcript position. Must hold mu.
func (e *Engine) adoptServerIDLocked(localKey, serverID string) {
	if prior, ok := e.byServer[serverID]; ok && prior != localKey {
		e.removeLocked(prior)
		e.logger.Debug("collapsed rival entry for server id",
			"server_id", serverID,
			"kept_local_key", localKey)
	}
	e.byServer[serverID] = localKey
	if idx, ok := e.byLocal[localKey]; ok {
		e.entries[idx].ServerID = serverID
	}
}

// removeLocked deletes the entry for localKey and reindexes. Must hold mu.
func (e *Engine) removeLocked(localKey string) {
	idx, ok := e.byLocal[localKey]
	if !ok {
		return
	}
	e.entries = append(e.entries[:idx], e.entries[idx+1:]...)
	delete(e.byLocal, localKey)
	for i := idx; i < len(e.entries); i++ {
		e.byLocal[e.entries[i].LocalKey] = i
	}
}

// matchHeuristicLocked looks for an existing entry that the incoming
// message is an echo of: exact text, matching user-vs-counterparty
// polarity, and creation times within the tolerance window. Must hold mu.
func (e *Engine) matchHeuristicLocked(msg chat.Message) (string, bool) {
	start := len(e.entries) - heuristicScan
	if start < 0 {
		start = 0
	}
	for i := len(e.entries) - 1; i >= start; i-- {
		entry := e.entries[i]
		if entry.Text != msg.Text {
			continue
		}
		if entry.Origin.UserSide() != msg.Origin.UserSide() {
			continue
		}
		delta := msg.CreatedAt.Sub(entry.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= e.window {
			return entry.LocalKey, true
		}
	}
	return "", false
}

func (e *Engine) suppress(rule, serverID string) {
	e.logger.Debug("push delivery discarded",
		"error", chat.ErrDuplicateSuppressed,
		"rule", rule,
		"server_id", serverID)
}

func (e *Engine) changed() {
	if e.notify != nil {
		e.notify()
	}
}
