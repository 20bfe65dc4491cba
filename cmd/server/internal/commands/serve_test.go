package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/livechat/internal/server"
)

func TestServeCmd_ApplyOverridesFile(t *testing.T) {
	cmd := &ServeCmd{
		Addr: ":9999",
		Chat: ChatFlags{MaxMessages: 7},
	}

	cfg := cmd.apply(server.DefaultConfig())

	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 7, cfg.Chat.MaxMessages)
	require.Equal(t, server.DefaultConfig().Chat.TypingTimeout, cfg.Chat.TypingTimeout, "unset flags keep the file value")
}

func TestServeCmd_RunStopsWhenContextCancelled(t *testing.T) {
	cmd := &ServeCmd{
		Addr:            "127.0.0.1:0",
		LogLevel:        "error",
		LogFormat:       "json",
		ShutdownTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.Run(ctx, &Globals{Version: "test"}) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after its context was cancelled")
	}
}
