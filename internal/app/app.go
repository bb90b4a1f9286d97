// ABOUTME: Application container wiring transport, gateway, rooms, controllers.
// ABOUTME: Owns the shared realtime connection and fans events out per kind.

package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oakmart/chatcore/internal/auth"
	"github.com/oakmart/chatcore/internal/chat"
	"github.com/oakmart/chatcore/internal/config"
	"github.com/oakmart/chatcore/internal/controller"
	"github.com/oakmart/chatcore/internal/gateway"
	"github.com/oakmart/chatcore/internal/room"
	"github.com/oakmart/chatcore/internal/transport"
)

// Callbacks lets the host UI observe every open conversation. All callbacks
// are optional and carry the kind so one handler can serve both screens.
type Callbacks struct {
	OnTranscript func(kind chat.Kind, messages []chat.Message)
	OnTyping     func(kind chat.Kind, active bool)
	OnBanner     func(kind chat.Kind, banner controller.Banner)
}

// App owns the process-wide messaging core. One transport connection and one
// room coordinator are shared by every conversation; controllers come and go
// with the screens that need them.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	cb     Callbacks

	userID    string
	tokens    auth.TokenSource
	gateway   *gateway.Gateway
	transport *transport.Client
	rooms     *room.Coordinator

	// openMu serializes Open so two callers cannot start rival
	// conversations for the same kind.
	openMu sync.Mutex

	mu          sync.Mutex
	controllers map[chat.Kind]*controller.Controller
}

// New resolves the identity token, builds the shared components, and wires
// transport events into the room coordinator and all open controllers. The
// transport does not connect until Start.
func New(cfg *config.Config, logger *slog.Logger, cb Callbacks) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var tokens auth.TokenSource
	if cfg.Auth.Token != "" {
		tokens = auth.StaticSource(cfg.Auth.Token)
	} else {
		tokens = &auth.FileSource{Path: cfg.Auth.TokenFile}
	}

	tok, err := tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("resolving token: %w", err)
	}
	ident, err := auth.ParseIdentity(tok)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}

	a := &App{
		cfg:         cfg,
		logger:      logger,
		cb:          cb,
		userID:      ident.UserID,
		tokens:      tokens,
		controllers: make(map[chat.Kind]*controller.Controller),
	}

	a.gateway = gateway.New(cfg.Server.APIBase, tokens, gateway.WithLogger(logger))
	a.transport = transport.NewClient(transport.Options{
		URL:         cfg.Server.SocketURL,
		UserID:      ident.UserID,
		BearerToken: tokens.Token,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		BaseDelay:   cfg.Reconnect.BaseDelay,
		MaxDelay:    cfg.Reconnect.MaxDelay,
		Logger:      logger,
	})
	a.rooms = room.NewCoordinator(a.transport, logger)

	a.transport.OnConnected(func() {
		a.rooms.HandleConnected(context.Background())
		a.broadcastConnectivity(transport.StateConnected)
	})
	a.transport.OnDisconnected(func(error) {
		a.rooms.HandleDisconnected()
		a.broadcastConnectivity(transport.StateConnecting)
	})
	a.transport.OnOffline(func() {
		a.broadcastConnectivity(transport.StateOffline)
	})
	a.transport.OnFrame(func(f transport.Frame) {
		for _, c := range a.snapshot() {
			c.HandleFrame(f)
		}
	})

	return a, nil
}

// UserID returns the authenticated user id from the token.
func (a *App) UserID() string { return a.userID }

// Start brings the realtime connection up. Idempotent; also used to retry
// from the offline state after the reconnect budget ran out.
func (a *App) Start(ctx context.Context) {
	a.transport.Connect(ctx)
}

// ConnectionState exposes the transport lifecycle state for status displays.
func (a *App) ConnectionState() transport.State {
	return a.transport.State()
}

// Open returns the controller for kind, starting a new conversation when the
// screen is first opened. Both kinds can be open at once; they share the
// transport and nothing else.
func (a *App) Open(ctx context.Context, kind chat.Kind) (*controller.Controller, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown conversation kind %q", kind)
	}

	a.openMu.Lock()
	defer a.openMu.Unlock()

	a.mu.Lock()
	if c, ok := a.controllers[kind]; ok {
		a.mu.Unlock()
		return c, nil
	}
	a.mu.Unlock()

	c := controller.New(controller.Options{
		Kind:            kind,
		UserID:          a.userID,
		Gateway:         a.gateway,
		Rooms:           a.rooms,
		Wire:            a.transport,
		SendTimeout:     a.cfg.Chat.SendTimeout,
		AntiFloodWindow: a.cfg.Chat.AntiFloodWindow,
		DedupWindow:     a.cfg.Chat.DedupWindow,
		SeenTTL:         a.cfg.Chat.SeenTTL,
		SeenMax:         a.cfg.Chat.SeenMax,
		TypingIdle:      a.cfg.Chat.TypingIdle,
		TypingExpiry:    a.cfg.Chat.TypingExpiry,
		Logger:          a.logger,
		OnTranscript:    a.transcriptCallback(kind),
		OnTyping:        a.typingCallback(kind),
		OnBanner:        a.bannerCallback(kind),
	})

	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	c.HandleConnectivity(a.transport.State())

	a.mu.Lock()
	a.controllers[kind] = c
	a.mu.Unlock()

	return c, nil
}

// Controller returns the open controller for kind, if any.
func (a *App) Controller(kind chat.Kind) (*controller.Controller, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.controllers[kind]
	return c, ok
}

// CloseScreen tears down the screen for kind. The session stays open on the
// server and resumes on the next Open.
func (a *App) CloseScreen(ctx context.Context, kind chat.Kind) {
	a.mu.Lock()
	c, ok := a.controllers[kind]
	delete(a.controllers, kind)
	a.mu.Unlock()

	if ok {
		c.Close(ctx)
	}
}

// EndSession closes the session for kind on the server and tears the screen
// down.
func (a *App) EndSession(ctx context.Context, kind chat.Kind) error {
	a.mu.Lock()
	c, ok := a.controllers[kind]
	delete(a.controllers, kind)
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("no open %s conversation", kind)
	}
	return c.EndSession(ctx)
}

// FocusRegained re-asserts room membership for every open conversation when
// the application returns to the foreground.
func (a *App) FocusRegained(ctx context.Context) {
	a.rooms.FocusRegained(ctx)
}

// Shutdown closes every open screen and drops the realtime connection.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	open := make([]*controller.Controller, 0, len(a.controllers))
	for _, c := range a.controllers {
		open = append(open, c)
	}
	a.controllers = make(map[chat.Kind]*controller.Controller)
	a.mu.Unlock()

	for _, c := range open {
		c.Close(ctx)
	}
	a.transport.Disconnect()
	a.logger.Info("messaging core shut down")
}

func (a *App) snapshot() []*controller.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*controller.Controller, 0, len(a.controllers))
	for _, c := range a.controllers {
		out = append(out, c)
	}
	return out
}

func (a *App) broadcastConnectivity(state transport.State) {
	for _, c := range a.snapshot() {
		c.HandleConnectivity(state)
	}
}

func (a *App) transcriptCallback(kind chat.Kind) func([]chat.Message) {
	if a.cb.OnTranscript == nil {
		return nil
	}
	return func(msgs []chat.Message) { a.cb.OnTranscript(kind, msgs) }
}

func (a *App) typingCallback(kind chat.Kind) func(bool) {
	if a.cb.OnTyping == nil {
		return nil
	}
	return func(active bool) { a.cb.OnTyping(kind, active) }
}

func (a *App) bannerCallback(kind chat.Kind) func(controller.Banner) {
	if a.cb.OnBanner == nil {
		return nil
	}
	return func(b controller.Banner) { a.cb.OnBanner(kind, b) }
}
