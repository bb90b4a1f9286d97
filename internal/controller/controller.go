// ABOUTME: Per-kind conversation screen controller tying gateway, rooms, transcript, typing.
// ABOUTME: Owns session id and banner state; orphaned instances become no-op sinks.

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oakmart/chatcore/internal/chat"
	"github.com/oakmart/chatcore/internal/dedupe"
	"github.com/oakmart/chatcore/internal/transcript"
	"github.com/oakmart/chatcore/internal/transport"
	"github.com/oakmart/chatcore/internal/typing"
)

// Controller errors surfaced to the host UI.
var (
	// ErrDuplicateSend rejects a second send of identical text within the
	// anti-flood window (impatient double-taps).
	ErrDuplicateSend = errors.New("identical message sent moments ago")

	// ErrNotStarted is returned for operations before Start succeeds.
	ErrNotStarted = errors.New("conversation not started")

	// ErrClosed is returned for operations after Close.
	ErrClosed = errors.New("conversation screen closed")
)

// Banner is the non-blocking connectivity/auth indicator state.
type Banner int

const (
	BannerNone Banner = iota
	BannerReconnecting
	BannerOffline
	BannerAuthRequired
)

func (b Banner) String() string {
	switch b {
	case BannerNone:
		return "none"
	case BannerReconnecting:
		return "reconnecting"
	case BannerOffline:
		return "offline"
	case BannerAuthRequired:
		return "auth-required"
	default:
		return "unknown"
	}
}

// SessionGateway is the slice of the REST gateway the controller uses.
type SessionGateway interface {
	CreateOrResumeSession(ctx context.Context, kind chat.Kind) (*chat.Session, []chat.Message, error)
	SendMessage(ctx context.Context, sessionID, text string) (*chat.Message, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// Rooms is the slice of the room coordinator the controller uses.
type Rooms interface {
	Activate(ctx context.Context, sessionID string, kind chat.Kind)
	Deactivate(ctx context.Context, sessionID string, kind chat.Kind)
	FocusRegained(ctx context.Context)
}

// Wire sends best-effort frames on the realtime channel.
type Wire interface {
	Send(ctx context.Context, f transport.Frame) error
}

// Options configures a Controller.
type Options struct {
	Kind    chat.Kind
	UserID  string
	Gateway SessionGateway
	Rooms   Rooms
	Wire    Wire

	SendTimeout     time.Duration
	AntiFloodWindow time.Duration
	DedupWindow     time.Duration
	SeenTTL         time.Duration
	SeenMax         int
	TypingIdle      time.Duration
	TypingExpiry    time.Duration

	Logger *slog.Logger

	// OnTranscript receives a fresh snapshot after every transcript change.
	OnTranscript func([]chat.Message)
	// OnTyping reflects the counter-party indicator.
	OnTyping func(active bool)
	// OnBanner reflects connectivity/auth state changes.
	OnBanner func(Banner)
}

const (
	defaultSendTimeout = 10 * time.Second
	defaultAntiFlood   = 3 * time.Second
	// guardMax bounds the anti-flood cache; a handful of entries is plenty
	// for one compose box.
	guardMax = 32
)

// Controller drives one conversation screen.
type Controller struct {
	kind   chat.Kind
	userID string

	gateway SessionGateway
	rooms   Rooms
	wire    Wire
	engine  *transcript.Engine
	typing  *typing.Coordinator
	guard   *dedupe.Cache

	sendTimeout time.Duration
	logger      *slog.Logger

	onTranscript func([]chat.Message)
	onTyping     func(active bool)
	onBanner     func(Banner)

	mu      sync.Mutex
	session *chat.Session
	banner  Banner

	detached atomic.Bool
}

// New builds a controller. Call Start to bring the conversation up.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "controller", "kind", opts.Kind)

	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.AntiFloodWindow <= 0 {
		opts.AntiFloodWindow = defaultAntiFlood
	}

	c := &Controller{
		kind:         opts.Kind,
		userID:       opts.UserID,
		gateway:      opts.Gateway,
		rooms:        opts.Rooms,
		wire:         opts.Wire,
		guard:        dedupe.New(opts.AntiFloodWindow, guardMax),
		sendTimeout:  opts.SendTimeout,
		logger:       logger,
		onTranscript: opts.OnTranscript,
		onTyping:     opts.OnTyping,
		onBanner:     opts.OnBanner,
	}

	c.engine = transcript.New(opts.Kind, transcript.Options{
		DedupWindow: opts.DedupWindow,
		SeenTTL:     opts.SeenTTL,
		SeenMax:     opts.SeenMax,
		Logger:      logger,
		OnChange:    c.emitTranscript,
	})

	c.typing = typing.NewCoordinator(opts.TypingIdle, opts.TypingExpiry,
		c.announceTyping, c.emitRemoteTyping)

	return c
}

// Start creates or resumes the session, seeds the transcript, and joins the
// room. Loading and error state belong to the caller via the returned error.
func (c *Controller) Start(ctx context.Context) error {
	if c.detached.Load() {
		return ErrClosed
	}

	sess, seed, err := c.gateway.CreateOrResumeSession(ctx, c.kind)
	if err != nil {
		if errors.Is(err, chat.ErrAuthRequired) {
			c.setBanner(BannerAuthRequired)
		}
		return fmt.Errorf("starting %s conversation: %w", c.kind, err)
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	c.engine.Seed(seed)
	c.rooms.Activate(ctx, sess.ID, c.kind)

	c.logger.Info("conversation started",
		"session_id", sess.ID,
		"resumed", sess.Resumed,
		"seed_messages", len(seed))
	return nil
}

// SessionID returns the active session id, or empty before Start.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

// Messages returns the current transcript snapshot.
func (c *Controller) Messages() []chat.Message {
	return c.engine.Messages()
}

// Banner returns the current banner state.
func (c *Controller) Banner() Banner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

// Send inserts text optimistically and drives the gateway send in the
// background. The returned message is the pending transcript entry; its
// delivery state converges to confirmed or failed via the local key.
func (c *Controller) Send(ctx context.Context, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, fmt.Errorf("empty message")
	}
	if c.detached.Load() {
		return chat.Message{}, ErrClosed
	}
	sessionID := c.SessionID()
	if sessionID == "" {
		return chat.Message{}, ErrNotStarted
	}

	// Reject impatient double-taps before anything reaches the gateway.
	if c.guard.CheckAndMark("send:" + string(c.kind) + ":" + text) {
		c.logger.Debug("rapid duplicate send rejected", "session_id", sessionID)
		return chat.Message{}, ErrDuplicateSend
	}

	pending := c.engine.AppendPending(text)

	// Sending clears the compose box; retract the typing indicator now
	// rather than waiting for the idle timer.
	c.typing.InputChanged("")

	// Best-effort realtime copy for the counter-party; the REST call below
	// is the authoritative delivery.
	if c.wire != nil {
		frame := transport.Frame{
			Type:      transport.FrameUserMessage,
			SessionID: sessionID,
			UserID:    c.userID,
			Text:      text,
			Timestamp: pending.CreatedAt,
		}
		if err := c.wire.Send(ctx, frame); err != nil && !errors.Is(err, chat.ErrTransportDisconnected) {
			c.logger.Debug("realtime copy not sent", "error", err)
		}
	}

	go c.deliver(sessionID, pending.LocalKey, text)

	return pending, nil
}

// Retry re-drives a failed entry through the send path. The entry keeps its
// local key and transcript position; no new entry appears.
func (c *Controller) Retry(ctx context.Context, localKey string) error {
	if c.detached.Load() {
		return ErrClosed
	}
	sessionID := c.SessionID()
	if sessionID == "" {
		return ErrNotStarted
	}

	msg, ok := c.engine.Message(localKey)
	if !ok {
		return fmt.Errorf("retry: %w", transcript.ErrUnknownKey)
	}
	if msg.Delivery != chat.DeliveryFailed {
		return fmt.Errorf("retry: message %s is %s, not failed", localKey, msg.Delivery)
	}

	if err := c.engine.Retry(localKey); err != nil {
		return err
	}
	go c.deliver(sessionID, localKey, msg.Text)
	return nil
}

// deliver runs the gateway send under the client-side timeout and resolves
// the pending entry. After Close the controller is an abandoned sink: the
// outcome is dropped without touching anything.
func (c *Controller) deliver(sessionID, localKey, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	confirmed, err := c.gateway.SendMessage(ctx, sessionID, text)

	if c.detached.Load() {
		c.logger.Debug("send resolved after close, dropping outcome", "local_key", localKey)
		return
	}

	if err != nil {
		c.logger.Warn("send failed", "session_id", sessionID, "local_key", localKey, "error", err)
		if errors.Is(err, chat.ErrAuthRequired) {
			c.setBanner(BannerAuthRequired)
		}
		if failErr := c.engine.Fail(localKey); failErr != nil {
			c.logger.Error("failed to mark message failed", "error", failErr)
		}
		return
	}

	if err := c.engine.Confirm(localKey, confirmed); err != nil {
		c.logger.Error("failed to confirm message", "error", err)
	}
}

// ComposeChanged relays compose-field edits into typing coordination.
func (c *Controller) ComposeChanged(text string) {
	if c.detached.Load() {
		return
	}
	c.typing.InputChanged(text)
}

// HandleFrame routes a realtime frame into the transcript or typing state.
// Frames for other sessions are ignored; each controller instance filters
// on its own session id.
func (c *Controller) HandleFrame(f transport.Frame) {
	if c.detached.Load() {
		return
	}
	sessionID := c.SessionID()
	if sessionID == "" || f.SessionID != sessionID {
		return
	}

	switch f.Type {
	case transport.FrameMessageDelivered:
		if f.Message == nil {
			c.logger.Debug("message_delivered frame without message")
			return
		}
		if c.engine.MergeRemote(*f.Message) && !f.Message.Origin.UserSide() {
			// A real counter-party message ends their typing indicator.
			c.typing.RemoteTyping(false)
		}
	case transport.FrameCounterpartyTyping:
		c.typing.RemoteTyping(f.IsTyping)
	case transport.FrameSendAcknowledged:
		c.engine.NoteAck(f.MessageID)
	}
}

// HandleConnectivity mirrors transport state into the banner.
func (c *Controller) HandleConnectivity(state transport.State) {
	switch state {
	case transport.StateConnected:
		c.setBanner(BannerNone)
	case transport.StateConnecting:
		c.setBanner(BannerReconnecting)
	case transport.StateOffline:
		c.setBanner(BannerOffline)
	}
}

// FocusRegained re-asserts room membership when the screen returns to the
// foreground.
func (c *Controller) FocusRegained(ctx context.Context) {
	if c.detached.Load() {
		return
	}
	c.rooms.FocusRegained(ctx)
}

// Close tears the screen down: leave the room, stop typing timers, and turn
// the controller into a no-op sink for any in-flight send (abandoned, not
// canceled).
func (c *Controller) Close(ctx context.Context) {
	if c.detached.Swap(true) {
		return
	}

	sessionID := c.SessionID()
	if sessionID != "" {
		c.rooms.Deactivate(ctx, sessionID, c.kind)
	}
	c.typing.Stop()
	c.logger.Info("conversation screen closed", "session_id", sessionID)
}

// EndSession closes the session on the server, then tears down the screen.
func (c *Controller) EndSession(ctx context.Context) error {
	sessionID := c.SessionID()
	if sessionID == "" {
		return ErrNotStarted
	}

	err := c.gateway.CloseSession(ctx, sessionID)
	c.Close(ctx)
	if err != nil {
		return fmt.Errorf("closing %s session: %w", c.kind, err)
	}
	return nil
}

// announceTyping pushes local typing transitions onto the wire.
func (c *Controller) announceTyping(started bool) {
	if c.detached.Load() || c.wire == nil {
		return
	}
	sessionID := c.SessionID()
	if sessionID == "" {
		return
	}

	frame := transport.Typing(sessionID, c.userID, started)
	if err := c.wire.Send(context.Background(), frame); err != nil {
		// Typing frames are fire-and-forget; a down transport is normal.
		if !errors.Is(err, chat.ErrTransportDisconnected) {
			c.logger.Debug("typing frame not sent", "error", err)
		}
	}
}

func (c *Controller) emitTranscript() {
	if c.detached.Load() || c.onTranscript == nil {
		return
	}
	c.onTranscript(c.engine.Messages())
}

func (c *Controller) emitRemoteTyping(active bool) {
	if c.detached.Load() || c.onTyping == nil {
		return
	}
	c.onTyping(active)
}

func (c *Controller) setBanner(b Banner) {
	c.mu.Lock()
	changed := c.banner != b
	c.banner = b
	c.mu.Unlock()

	if changed && c.onBanner != nil && !c.detached.Load() {
		c.onBanner(b)
	}
}
