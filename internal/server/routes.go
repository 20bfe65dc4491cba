package server

import (
	"net/http"

	httpmw "github.com/Tyrowin/livechat/internal/server/middleware"
)

// SetupRoutes returns a ServeMux with the health, status, WebSocket and test
// console routes.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("GET /api/status", s.StatusHandler)
	mux.HandleFunc("GET /test", s.TestPageHandler)
	return mux
}

// Handler returns the routes wrapped in client address extraction and
// request logging.
func (s *Server) Handler() http.Handler {
	return httpmw.Chain(s.SetupRoutes(),
		httpmw.ClientIP(),
		httpmw.RequestLogger(s.log),
	)
}
