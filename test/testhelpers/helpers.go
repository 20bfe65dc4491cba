// Package testhelpers provides shared utilities for the livechat end-to-end
// tests: a running server backed by a real hub, and WebSocket clients that
// speak the chat event protocol.
package testhelpers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/livechat/internal/chat"
	"github.com/Tyrowin/livechat/internal/server"
)

// TestOrigin is the origin every test server allows.
const TestOrigin = "http://localhost:8080"

// Env is a running chat server.
type Env struct {
	Hub    *chat.Hub
	Server *server.Server
	HTTP   *httptest.Server
	WSURL  string
}

// StartServer starts a hub and an httptest server using the default
// configuration adjusted by mutate. Everything is shut down on test cleanup.
func StartServer(t *testing.T, mutate func(*server.Config)) *Env {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	if mutate != nil {
		mutate(&cfg)
	}

	opts := cfg.HubOptions()
	opts.Logger = zerolog.Nop()
	hub := chat.NewHub(opts)
	go hub.Run()

	srv := server.New(cfg, hub, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())

	env := &Env{
		Hub:    hub,
		Server: srv,
		HTTP:   ts,
		WSURL:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
	t.Cleanup(func() { env.Shutdown(t) })
	return env
}

// Shutdown stops the hub, waits for client pumps and closes the listener. It
// may be called more than once.
func (e *Env) Shutdown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Hub.Shutdown(ctx))
	require.NoError(t, e.Server.Shutdown(ctx))
	e.HTTP.Close()
}

// WaitForConnections blocks until the hub reports n attached connections.
func (e *Env) WaitForConnections(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		stats, err := e.Hub.Stats()
		return err == nil && stats.Connections == n
	}, 5*time.Second, 10*time.Millisecond, "waiting for %d connections", n)
}

// Client is a protocol-level WebSocket test client.
type Client struct {
	t    *testing.T
	Conn *websocket.Conn
}

// Dial connects to env with the test origin.
func Dial(t *testing.T, env *Env) *Client {
	t.Helper()
	conn, resp, err := DialWithOrigin(env.WSURL, TestOrigin)
	require.NoError(t, err)
	_ = resp.Body.Close()

	c := &Client{t: t, Conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// DialWithOrigin dials url with the given Origin header; an empty origin sends
// none. resp is returned even when the handshake fails.
func DialWithOrigin(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return dialer.Dial(url, header)
}

// Emit sends one event.
func (c *Client) Emit(event string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.Conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// Login emits a login and consumes the users_update and message_history that
// answer it, returning the history.
func (c *Client) Login(username string) []chat.Message {
	c.t.Helper()
	c.Emit(chat.EventLogin, username)
	c.Expect(chat.EventUsersUpdate)

	var history []chat.Message
	c.Decode(c.Expect(chat.EventMessageHistory), &history)
	return history
}

// Next reads the next event.
func (c *Client) Next() (chat.Envelope, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return chat.Envelope{}, err
	}
	_, frame, err := c.Conn.ReadMessage()
	if err != nil {
		return chat.Envelope{}, err
	}
	var env chat.Envelope
	err = json.Unmarshal(frame, &env)
	return env, err
}

// Expect skips events until one called name arrives and returns its payload.
func (c *Client) Expect(name string) json.RawMessage {
	c.t.Helper()
	for {
		env, err := c.Next()
		require.NoError(c.t, err, "waiting for %s", name)
		if env.Event == name {
			return env.Data
		}
	}
}

// ExpectNone asserts that no event called name arrives within d. The read
// deadline expiring leaves the connection unusable, so call it last.
func (c *Client) ExpectNone(name string, d time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(d)
	for {
		require.NoError(c.t, c.Conn.SetReadDeadline(deadline))
		_, frame, err := c.Conn.ReadMessage()
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		require.NoError(c.t, err)

		var env chat.Envelope
		require.NoError(c.t, json.Unmarshal(frame, &env))
		require.NotEqual(c.t, name, env.Event, "unexpected %s event", name)
	}
}

// Decode unmarshals a payload into v.
func (c *Client) Decode(raw json.RawMessage, v any) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal(raw, v))
}

// Close sends a normal close frame and closes the socket.
func (c *Client) Close() {
	_ = c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.Conn.Close()
}

// Usernames extracts the names from a users_update payload.
func Usernames(t *testing.T, raw json.RawMessage) []string {
	t.Helper()
	var sessions []chat.Session
	require.NoError(t, json.Unmarshal(raw, &sessions))
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		names = append(names, s.Username)
	}
	return names
}
