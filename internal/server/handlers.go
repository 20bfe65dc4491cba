package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	httpmw "github.com/Tyrowin/livechat/internal/server/middleware"
)

// WebSocketHandler upgrades a GET request, registers the new client with the
// hub and starts its read and write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	addr := httpmw.ClientIPFromContext(r.Context())
	if addr == "" {
		addr = r.RemoteAddr
	}
	client := NewClient(conn, s.hub, addr, s.cfg, s.log)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		s.log.Debug().Str("addr", addr).Msg("server shutting down, refusing connection")
		_ = conn.Close()
		return
	}

	if err := s.hub.Connect(client.ID(), client); err != nil {
		s.log.Warn().Err(err).Str("addr", addr).Msg("hub refused connection")
		_ = conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, healthMessage)
}

// StatusHandler reports connection, session and message counts plus the
// current presence list as JSON.
func (s *Server) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.hub.Stats()
	if err != nil {
		http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.log.Warn().Err(err).Msg("error writing status response")
	}
}

// TestPageHandler serves a minimal HTML console that speaks the chat event
// protocol, for manual testing.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Warn().Err(err).Msg("error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>livechat test console</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        #users { color: #555; margin: 10px 0; }
        #typing { color: #888; font-style: italic; height: 1.2em; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>livechat test console</h1>
    <div>
        <input type="text" id="username" placeholder="Username">
        <button onclick="login()">Login</button>
    </div>
    <div id="users"></div>
    <div id="log"></div>
    <div id="typing"></div>
    <div>
        <input type="text" id="text" placeholder="Type a message..." oninput="typing()">
        <button onclick="send()">Send</button>
    </div>
    <script>
        const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(scheme + location.host + '/ws');
        const logDiv = document.getElementById('log');
        let stopTimer = null;

        function emit(event, data) { ws.send(JSON.stringify({event: event, data: data})); }
        function append(text) {
            const el = document.createElement('div');
            el.textContent = text;
            logDiv.appendChild(el);
            logDiv.scrollTop = logDiv.scrollHeight;
        }
        function login() { emit('login', document.getElementById('username').value); }
        function send() {
            const input = document.getElementById('text');
            emit('message', input.value);
            emit('typing', false);
            input.value = '';
        }
        function typing() {
            emit('typing', true);
            clearTimeout(stopTimer);
            stopTimer = setTimeout(function() { emit('typing', false); }, 1000);
        }

        ws.onopen = function() { append('connected'); };
        ws.onclose = function() { append('connection closed'); };
        ws.onmessage = function(e) {
            const env = JSON.parse(e.data);
            switch (env.event) {
            case 'message': append(env.data.user + ': ' + env.data.text); break;
            case 'message_history': env.data.forEach(function(m) { append(m.user + ': ' + m.text); }); break;
            case 'users_update':
                document.getElementById('users').textContent = 'online: ' + env.data.map(function(u) { return u.username; }).join(', ');
                break;
            case 'user_typing':
                document.getElementById('typing').textContent = env.data.isTyping ? env.data.username + ' is typing...' : '';
                break;
            case 'error': append('error: ' + env.data); break;
            }
        };
    </script>
</body>
</html>`
