// ABOUTME: Reconnecting WebSocket client shared by every conversation kind.
// ABOUTME: Capped backoff, identity re-announce on connect, serialized frame dispatch.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/oakmart/chatcore/internal/chat"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateOffline means the reconnect budget is exhausted. The client
	// stays parked until the next explicit Connect.
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Options configures a Client.
type Options struct {
	// URL is the realtime endpoint (ws:// or wss://).
	URL string
	// UserID is announced via register_identity on every (re)connect.
	UserID string
	// BearerToken, when set, supplies the Authorization header for the
	// handshake.
	BearerToken func() (string, error)

	// Reconnect policy. Zero values fall back to the defaults below.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	Logger *slog.Logger

	// Dial overrides the WebSocket dialer; tests use this.
	Dial func(ctx context.Context) (*websocket.Conn, error)
}

const (
	defaultMaxAttempts = 8
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
)

// Client owns the process-wide realtime connection. Both screen controllers
// share one instance; only the room coordinator and the application
// container touch its lifecycle.
type Client struct {
	opts   Options
	dial   func(ctx context.Context) (*websocket.Conn, error)
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc

	// writeMu serializes WebSocket writes from concurrent callers.
	writeMu sync.Mutex

	handlersMu     sync.Mutex
	onConnected    []func()
	onDisconnected []func(error)
	onConnectError []func(error)
	onOffline      []func()
	onFrame        []func(Frame)
}

// NewClient builds a client; it does not connect.
func NewClient(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		opts:   opts,
		logger: logger.With("component", "transport"),
	}
	c.dial = opts.Dial
	if c.dial == nil {
		c.dial = c.dialWebSocket
	}
	return c
}

// OnConnected registers a handler fired after identity registration on every
// (re)connect.
func (c *Client) OnConnected(fn func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onConnected = append(c.onConnected, fn)
}

// OnDisconnected registers a handler fired when an established connection
// drops. Reconnection is already underway when it fires.
func (c *Client) OnDisconnected(fn func(reason error)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onDisconnected = append(c.onDisconnected, fn)
}

// OnConnectError registers a handler fired when a connection attempt fails.
func (c *Client) OnConnectError(fn func(reason error)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onConnectError = append(c.onConnectError, fn)
}

// OnOffline registers a handler fired when the reconnect budget runs out.
func (c *Client) OnOffline(fn func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onOffline = append(c.onOffline, fn)
}

// OnFrame registers a handler for server frames. Handlers run serially on
// the reader goroutine.
func (c *Client) OnFrame(fn func(Frame)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onFrame = append(c.onFrame, fn)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the connection is currently established.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Connect starts the connection loop. Idempotent: calling while connecting
// or connected is a no-op. Calling from StateOffline resets the attempt
// budget.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	go c.run(runCtx)
}

// Disconnect tears down the connection and cancels pending reconnection
// attempts.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.cancel = nil
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
}

// Send writes a frame to the server. Returns chat.ErrTransportDisconnected
// when the connection is not established; callers treat that as a normal,
// recoverable state.
func (c *Client) Send(ctx context.Context, f Frame) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return chat.ErrTransportDisconnected
	}
	return c.writeFrame(ctx, conn, f)
}

// run drives connect/reconnect until the context is canceled or the attempt
// budget is exhausted.
func (c *Client) run(ctx context.Context) {
	attempts := 0

	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		conn, err := c.dial(ctx)
		if err == nil {
			// Identity must be announced before anyone learns we are
			// connected; server-side routing keys off it.
			err = c.writeFrame(ctx, conn, Frame{Type: FrameRegisterIdentity, UserID: c.opts.UserID})
			if err != nil {
				conn.Close(websocket.StatusInternalError, "identity registration failed")
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return
			}
			attempts++
			c.logger.Warn("connect attempt failed",
				"attempt", attempts,
				"max_attempts", c.opts.MaxAttempts,
				"error", err)
			c.fireConnectError(err)

			if attempts >= c.opts.MaxAttempts {
				c.setState(StateOffline)
				c.logger.Error("reconnect budget exhausted, going offline")
				c.fireOffline()
				return
			}
			if !c.sleep(ctx, c.backoff(attempts)) {
				c.setState(StateDisconnected)
				return
			}
			continue
		}

		attempts = 0
		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()
		c.logger.Info("connected", "url", c.opts.URL)
		c.fireConnected()

		reason := c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		if c.state == StateConnected {
			c.state = StateConnecting
		}
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		c.logger.Warn("connection lost", "reason", reason)
		c.fireDisconnected(reason)
		attempts = 1
		if !c.sleep(ctx, c.backoff(attempts)) {
			c.setState(StateDisconnected)
			return
		}
	}
}

// readLoop reads frames until the connection drops and returns the reason.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Error("dropping malformed frame", "error", err, "len", len(data))
			continue
		}
		c.fireFrame(f)
	}
}

func (c *Client) writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return errors.Join(chat.ErrTransportDisconnected, err)
	}
	return nil
}

func (c *Client) dialWebSocket(ctx context.Context) (*websocket.Conn, error) {
	var hdr http.Header
	if c.opts.BearerToken != nil {
		tok, err := c.opts.BearerToken()
		if err != nil {
			return nil, err
		}
		hdr = http.Header{"Authorization": []string{"Bearer " + tok}}
	}

	conn, _, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{HTTPHeader: hdr})
	return conn, err
}

// backoff returns the delay before the given attempt number, exponential
// with jitter and capped at MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.BaseDelay << (attempt - 1)
	if d <= 0 || d > c.opts.MaxDelay {
		d = c.opts.MaxDelay
	}
	half := d / 2
	return half + rand.N(half+1)
}

// sleep waits for d or context cancellation, reporting whether the wait
// completed.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) fireConnected() {
	for _, fn := range c.connectedHandlers() {
		fn()
	}
}

func (c *Client) fireDisconnected(reason error) {
	c.handlersMu.Lock()
	handlers := append([]func(error){}, c.onDisconnected...)
	c.handlersMu.Unlock()
	for _, fn := range handlers {
		fn(reason)
	}
}

func (c *Client) fireConnectError(reason error) {
	c.handlersMu.Lock()
	handlers := append([]func(error){}, c.onConnectError...)
	c.handlersMu.Unlock()
	for _, fn := range handlers {
		fn(reason)
	}
}

func (c *Client) fireOffline() {
	c.handlersMu.Lock()
	handlers := append([]func(){}, c.onOffline...)
	c.handlersMu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (c *Client) fireFrame(f Frame) {
	c.handlersMu.Lock()
	handlers := append([]func(Frame){}, c.onFrame...)
	c.handlersMu.Unlock()
	for _, fn := range handlers {
		fn(f)
	}
}

func (c *Client) connectedHandlers() []func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	return append([]func(){}, c.onConnected...)
}
