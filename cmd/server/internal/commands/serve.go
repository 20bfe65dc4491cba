package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/livechat/internal/chat"
	"github.com/Tyrowin/livechat/internal/logger"
	"github.com/Tyrowin/livechat/internal/server"
	"github.com/Tyrowin/livechat/internal/telemetry"
)

// ServeCmd runs the HTTP and WebSocket server. Flags left at their zero value
// fall back to the config file, then to the built-in defaults.
type ServeCmd struct {
	Config string `help:"path to YAML config file" default:"" env:"LIVECHAT_CONFIG"`

	Addr           string   `help:"HTTP listen address (overrides addr)" env:"SERVER_ADDR"`
	AllowedOrigins []string `help:"allowed WebSocket origins, * allows all (overrides allowed_origins)" env:"ALLOWED_ORIGINS"`
	MaxMessageSize int64    `help:"maximum inbound frame size in bytes" env:"MAX_MESSAGE_SIZE"`
	SendBufferSize int      `help:"per-connection outbound queue length" env:"SEND_BUFFER_SIZE"`

	RateLimit RateLimitFlags `embed:"" prefix:"rate-limit-"`
	Chat      ChatFlags      `embed:"" prefix:"chat-"`

	LogLevel        string        `help:"log level" default:"info" env:"LOG_LEVEL" enum:"trace,debug,info,warn,error"`
	LogFormat       string        `help:"log output format" default:"console" env:"LOG_FORMAT" enum:"console,json"`
	Telemetry       bool          `help:"export metrics over OTLP/gRPC" default:"false" env:"LIVECHAT_TELEMETRY"`
	ShutdownTimeout time.Duration `help:"time allowed for graceful shutdown" default:"10s" env:"SHUTDOWN_TIMEOUT"`
}

type RateLimitFlags struct {
	Burst          int           `help:"frames allowed in a burst per connection" env:"RATE_LIMIT_BURST"`
	RefillInterval time.Duration `help:"interval over which the burst refills" env:"RATE_LIMIT_REFILL_INTERVAL"`
}

type ChatFlags struct {
	MaxMessages   int           `help:"number of messages kept in history" env:"CHAT_MAX_MESSAGES"`
	TypingTimeout time.Duration `help:"typing indicator expiry" env:"CHAT_TYPING_TIMEOUT"`
}

// apply overlays explicitly set flags on cfg.
func (c *ServeCmd) apply(cfg server.Config) server.Config {
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	if len(c.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = c.AllowedOrigins
	}
	if c.MaxMessageSize != 0 {
		cfg.MaxMessageSize = c.MaxMessageSize
	}
	if c.SendBufferSize != 0 {
		cfg.SendBufferSize = c.SendBufferSize
	}
	if c.RateLimit.Burst != 0 {
		cfg.RateLimit.Burst = c.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval != 0 {
		cfg.RateLimit.RefillInterval = c.RateLimit.RefillInterval
	}
	if c.Chat.MaxMessages != 0 {
		cfg.Chat.MaxMessages = c.Chat.MaxMessages
	}
	if c.Chat.TypingTimeout != 0 {
		cfg.Chat.TypingTimeout = c.Chat.TypingTimeout
	}
	return cfg
}

func (c *ServeCmd) load() (server.Config, error) {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return server.Config{}, err
	}

	cfg = c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return server.Config{}, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg.Sanitize(), nil
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log, err := logger.Setup(c.LogLevel, c.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := c.load()
	if err != nil {
		return err
	}

	log.Info().
		Str("version", globals.Version).
		Str("addr", cfg.Addr).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("max_messages", cfg.Chat.MaxMessages).
		Dur("typing_timeout", cfg.Chat.TypingTimeout).
		Msg("Starting livechat server")

	flushTelemetry := func(context.Context) error { return nil }
	if c.Telemetry {
		shutdown, err := telemetry.InitTelemetry(ctx, "livechat-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics export")
		} else {
			flushTelemetry = shutdown
		}
	}

	opts := cfg.HubOptions()
	opts.Logger = log
	opts.Metrics = telemetry.Default()
	hub := chat.NewHub(opts)
	go hub.Run()

	srv := server.New(cfg, hub, log)
	httpServer := server.CreateServer(cfg.Addr, srv.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer, log)
	})

	// A listener failure or a cancelled ctx triggers the same shutdown path as
	// a signal.
	wait := gfshutdown.GracefulShutdown(gctx, c.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			return server.ShutdownServer(ctx, httpServer, log)
		},
		"chat-hub": func(ctx context.Context) error {
			if err := hub.Shutdown(ctx); err != nil {
				return err
			}
			return srv.Shutdown(ctx)
		},
	})

	exitCode := <-wait
	log.Info().Int("exit_code", exitCode).Msg("Shutdown finished")

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := flushTelemetry(flushCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown telemetry")
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	if exitCode != 0 {
		return errors.New("graceful shutdown timed out")
	}
	return nil
}
