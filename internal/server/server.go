package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/livechat/internal/chat"
)

// Server upgrades HTTP requests to WebSocket clients of a chat.Hub and tracks
// their pump goroutines.
type Server struct {
	cfg      Config
	hub      *chat.Hub
	origins  originPolicy
	upgrader websocket.Upgrader
	log      zerolog.Logger

	// mu orders wg.Add in WebSocketHandler against Shutdown's wg.Wait.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// New creates a Server for hub. cfg is sanitized before use.
func New(cfg Config, hub *chat.Hub, log zerolog.Logger) *Server {
	cfg = cfg.Sanitize()
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		origins: newOriginPolicy(cfg.AllowedOrigins),
		log:     log.With().Str("component", "server").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.origins.allows(r) {
		return true
	}

	s.log.Warn().Str("origin", r.Header.Get("Origin")).Msg("blocked WebSocket connection from disallowed origin")
	return false
}

// Shutdown refuses new WebSocket clients and waits for all client pumps to
// finish or ctx to expire. The hub must be shut down as well so that every
// client queue is closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("all client pumps stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("timed out waiting for client pumps")
		return ctx.Err()
	}
}
