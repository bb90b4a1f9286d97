// ABOUTME: Tests for the REST gateway against an httptest backend.
// ABOUTME: Covers auth headers, session resume, send, history, and error mapping.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/chatcore/internal/auth"
	"github.com/oakmart/chatcore/internal/chat"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, auth.StaticSource("tok-1"))
}

func TestCreateOrResumeSession(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var req createSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, chat.KindAssistant, req.Kind)

		json.NewEncoder(w).Encode(sessionResponse{
			SessionID: "sess-9",
			Status:    chat.SessionActive,
			Resumed:   true,
			Messages: []chat.Message{
				{ServerID: "m-1", Text: "Welcome back!", Origin: chat.OriginAssistant},
			},
		})
	})

	sess, seed, err := g.CreateOrResumeSession(context.Background(), chat.KindAssistant)
	require.NoError(t, err)
	assert.Equal(t, "sess-9", sess.ID)
	assert.Equal(t, chat.KindAssistant, sess.Kind)
	assert.True(t, sess.Resumed)
	require.Len(t, seed, 1)
	assert.Equal(t, "m-1", seed[0].ServerID)
}

func TestCreateOrResumeSession_UnknownKind(t *testing.T) {
	g := New("http://unused", auth.StaticSource("tok"))

	_, _, err := g.CreateOrResumeSession(context.Background(), chat.Kind("checkout"))
	assert.Error(t, err)
}

func TestSendMessage(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/sess-9/messages", r.URL.Path)

		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		json.NewEncoder(w).Encode(sendMessageResponse{Message: chat.Message{
			ServerID:  "m-2",
			Text:      req.Text,
			Origin:    chat.OriginRemoteUser,
			CreatedAt: time.Now(),
		}})
	})

	msg, err := g.SendMessage(context.Background(), "sess-9", "Xin chào")
	require.NoError(t, err)
	assert.Equal(t, "m-2", msg.ServerID)
	assert.Equal(t, "Xin chào", msg.Text)
}

func TestSendMessage_AuthRequired(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := g.SendMessage(context.Background(), "sess-9", "hi")
	assert.ErrorIs(t, err, chat.ErrAuthRequired)
}

func TestSendMessage_NoToken(t *testing.T) {
	called := false
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	g.tokens = auth.StaticSource("")

	_, err := g.SendMessage(context.Background(), "sess-9", "hi")
	assert.ErrorIs(t, err, chat.ErrAuthRequired)
	assert.False(t, called, "request must not reach the server without a token")
}

func TestSendMessage_ServerError(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := g.SendMessage(context.Background(), "sess-9", "hi")

	var serverErr *chat.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusInternalServerError, serverErr.Status)
	assert.False(t, chat.IsRetryable(err), "server errors are surfaced, not retried")
}

func TestSendMessage_NetworkError(t *testing.T) {
	g := New("http://127.0.0.1:1", auth.StaticSource("tok"))

	_, err := g.SendMessage(context.Background(), "sess-9", "hi")

	var netErr *chat.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, chat.IsRetryable(err))
}

func TestFetchHistory(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sessions/sess-9", r.URL.Path)

		json.NewEncoder(w).Encode(sessionResponse{
			SessionID: "sess-9",
			Status:    chat.SessionActive,
			Messages: []chat.Message{
				{ServerID: "m-1", Text: "hello", Origin: chat.OriginRemoteUser},
				{ServerID: "m-2", Text: "hi there", Origin: chat.OriginStaff, StaffName: "Minh"},
			},
		})
	})

	msgs, err := g.FetchHistory(context.Background(), "sess-9")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Minh", msgs[1].StaffName)
}

func TestFetchHistory_ClosedSession(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sessionResponse{
			SessionID: "sess-9",
			Status:    chat.SessionClosed,
			Messages:  []chat.Message{{ServerID: "m-1", Text: "bye"}},
		})
	})

	msgs, err := g.FetchHistory(context.Background(), "sess-9")
	assert.ErrorIs(t, err, chat.ErrSessionClosed)
	assert.Len(t, msgs, 1, "history still returned alongside the closed marker")
}

func TestCloseSession(t *testing.T) {
	var gotMethod, gotPath string
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, g.CloseSession(context.Background(), "sess-9"))
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/sessions/sess-9/close", gotPath)
}

func TestErrorsNeverPanic(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := g.SendMessage(context.Background(), "sess-9", "hi")
	require.Error(t, err)
	assert.False(t, errors.Is(err, chat.ErrAuthRequired))
}
