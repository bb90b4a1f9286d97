// ABOUTME: REST client for the conversation backend (sessions, history, sends).
// ABOUTME: Maps HTTP outcomes onto the typed error taxonomy; holds no session state.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/oakmart/chatcore/internal/auth"
	"github.com/oakmart/chatcore/internal/chat"
)

const (
	defaultTimeout = 30 * time.Second
	// maxErrorBody caps how much of an error response is kept for logs.
	maxErrorBody = 512
)

// Gateway performs bearer-authenticated REST calls against the backend.
type Gateway struct {
	baseURL string
	httpc   *http.Client
	tokens  auth.TokenSource
	logger  *slog.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpc = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l.With("component", "gateway") }
}

// New creates a Gateway for the given API base URL.
func New(baseURL string, tokens auth.TokenSource, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: defaultTimeout},
		tokens:  tokens,
		logger:  slog.Default().With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// createSessionRequest is the JSON body for POST /sessions.
type createSessionRequest struct {
	Kind chat.Kind `json:"kind"`
}

// sessionResponse is the JSON shape of POST /sessions and GET /sessions/{id}.
type sessionResponse struct {
	SessionID string             `json:"sessionId"`
	Status    chat.SessionStatus `json:"status"`
	Resumed   bool               `json:"resumed"`
	Messages  []chat.Message     `json:"messages"`
}

// sendMessageRequest is the JSON body for POST /sessions/{id}/messages.
type sendMessageRequest struct {
	Text string `json:"text"`
}

// sendMessageResponse wraps the confirmed message.
type sendMessageResponse struct {
	Message chat.Message `json:"message"`
}

// CreateOrResumeSession creates the session for the given kind, or resumes
// the active one if the server is resume-capable. Returns the session and
// its seed transcript.
func (g *Gateway) CreateOrResumeSession(ctx context.Context, kind chat.Kind) (*chat.Session, []chat.Message, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("unknown conversation kind %q", kind)
	}

	var resp sessionResponse
	if err := g.do(ctx, "create session", http.MethodPost, "/sessions", createSessionRequest{Kind: kind}, &resp); err != nil {
		return nil, nil, err
	}

	sess := &chat.Session{
		ID:      resp.SessionID,
		Kind:    kind,
		Status:  resp.Status,
		Resumed: resp.Resumed,
	}
	if sess.Status == "" {
		sess.Status = chat.SessionActive
	}

	g.logger.Info("session ready",
		"session_id", sess.ID,
		"kind", kind,
		"resumed", sess.Resumed,
		"seed_messages", len(resp.Messages))

	return sess, resp.Messages, nil
}

// SendMessage delivers one user message and returns the server-confirmed
// copy. Not retried internally.
func (g *Gateway) SendMessage(ctx context.Context, sessionID, text string) (*chat.Message, error) {
	if text == "" {
		return nil, fmt.Errorf("message text is empty")
	}

	var resp sendMessageResponse
	path := "/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := g.do(ctx, "send message", http.MethodPost, path, sendMessageRequest{Text: text}, &resp); err != nil {
		return nil, err
	}

	return &resp.Message, nil
}

// FetchHistory returns the stored transcript for a session.
func (g *Gateway) FetchHistory(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var resp sessionResponse
	path := "/sessions/" + url.PathEscape(sessionID)
	if err := g.do(ctx, "fetch history", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Status == chat.SessionClosed || resp.Status == chat.SessionArchived {
		return resp.Messages, chat.ErrSessionClosed
	}
	return resp.Messages, nil
}

// CloseSession asks the server to close the session. The client forgets the
// session either way; the server is the durable owner.
func (g *Gateway) CloseSession(ctx context.Context, sessionID string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/close"
	return g.do(ctx, "close session", http.MethodPatch, path, nil, nil)
}

// do runs one authenticated round-trip, decoding a 2xx body into out when
// out is non-nil.
func (g *Gateway) do(ctx context.Context, op, method, path string, body, out any) error {
	token, err := g.tokens.Token()
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpc.Do(req)
	if err != nil {
		return &chat.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return chat.ErrAuthRequired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		g.logger.Warn("server rejected request",
			"op", op,
			"status", resp.StatusCode)
		return &chat.ServerError{Op: op, Status: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &chat.NetworkError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
