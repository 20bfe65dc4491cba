package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/livechat/internal/chat"
)

// RateLimitConfig defines the parameters for per-connection frame rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// ChatConfig holds the engine settings passed to chat.NewHub.
type ChatConfig struct {
	MaxMessages   int           `yaml:"max_messages"`
	TypingTimeout time.Duration `yaml:"typing_timeout"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Addr           string          `yaml:"addr"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size"`
	SendBufferSize int             `yaml:"send_buffer_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Chat           ChatConfig      `yaml:"chat"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		Addr: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		Chat: ChatConfig{
			MaxMessages:   chat.MaxMessages,
			TypingTimeout: chat.TypingTimeout,
		},
	}
}

// LoadConfig reads a YAML configuration file. An empty path or a missing file
// yields the defaults. The result is validated and sanitized.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Debug().Str("path", path).Msg("config file not found, using defaults")
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg.Sanitize(), nil
}

// Validate rejects values that cannot be corrected by falling back to a default.
func (c Config) Validate() error {
	var errs []error
	if c.MaxMessageSize < 0 {
		errs = append(errs, errors.New("max_message_size must not be negative"))
	}
	if c.SendBufferSize < 0 {
		errs = append(errs, errors.New("send_buffer_size must not be negative"))
	}
	if c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit.burst must not be negative"))
	}
	if c.RateLimit.RefillInterval < 0 {
		errs = append(errs, errors.New("rate_limit.refill_interval must not be negative"))
	}
	if c.Chat.MaxMessages < 0 {
		errs = append(errs, errors.New("chat.max_messages must not be negative"))
	}
	if c.Chat.TypingTimeout < 0 {
		errs = append(errs, errors.New("chat.typing_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Sanitize replaces zero values with defaults and normalizes the origin list.
func (c Config) Sanitize() Config {
	defaults := DefaultConfig()

	if c.Addr == "" {
		c.Addr = defaults.Addr
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaults.SendBufferSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if c.Chat.MaxMessages <= 0 {
		c.Chat.MaxMessages = defaults.Chat.MaxMessages
	}
	if c.Chat.TypingTimeout <= 0 {
		c.Chat.TypingTimeout = defaults.Chat.TypingTimeout
	}

	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = defaults.AllowedOrigins
	}
	normalized, allowAll := normalizeOrigins(c.AllowedOrigins)
	if allowAll {
		normalized = append(normalized, "*")
	}
	c.AllowedOrigins = normalized
	return c
}

// HubOptions maps the chat settings onto chat.Options.
func (c Config) HubOptions() chat.Options {
	return chat.Options{
		MaxMessages:   c.Chat.MaxMessages,
		TypingTimeout: c.Chat.TypingTimeout,
	}
}
