package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livechat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Sanitize(), cfg)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
allowed_origins:
  - "HTTPS://Chat.Example.com"
  - "not a url"
max_message_size: 1024
rate_limit:
  burst: 3
  refill_interval: 2s
chat:
  max_messages: 20
  typing_timeout: 750ms
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBufferSize, "unset keys keep their default")
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 20, cfg.Chat.MaxMessages)
	assert.Equal(t, 750*time.Millisecond, cfg.Chat.TypingTimeout)

	opts := cfg.HubOptions()
	assert.Equal(t, 20, opts.MaxMessages)
	assert.Equal(t, 750*time.Millisecond, opts.TypingTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "addr: [unterminated"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "max_message_size: -1\nchat:\n  typing_timeout: -1s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_message_size")
	assert.Contains(t, err.Error(), "chat.typing_timeout")
}

func TestConfig_Sanitize(t *testing.T) {
	cfg := Config{AllowedOrigins: []string{" * ", "http://a.test"}}.Sanitize()

	defaults := DefaultConfig()
	assert.Equal(t, defaults.Addr, cfg.Addr)
	assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
	assert.Equal(t, defaults.Chat, cfg.Chat)
	assert.Equal(t, []string{"http://a.test", "*"}, cfg.AllowedOrigins)

	empty := Config{}.Sanitize()
	assert.Equal(t, []string{"http://localhost:8080"}, empty.AllowedOrigins)
}
