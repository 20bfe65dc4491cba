package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/Tyrowin/livechat/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Version kong.VersionFlag
		Serve   commands.ServeCmd `cmd:"" default:"withargs" help:"Start the chat server"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("livechat"),
		kong.Description("Real-time chat server with presence and typing indicators."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Version: version})
	cmd.FatalIfErrorf(err)
}
