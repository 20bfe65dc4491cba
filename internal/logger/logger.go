// Package logger configures the zerolog logger shared by the livechat server.
package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats accepted by Setup.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Setup builds a logger writing to w at the given level and installs it as the
// global log.Logger. format is either FormatConsole or FormatJSON.
func Setup(level, format string, w io.Writer) (zerolog.Logger, error) {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer
	switch format {
	case FormatJSON:
		output = w
	case FormatConsole, "":
		output = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}

	logger := zerolog.New(output).Level(parsedLevel).With().Timestamp().Logger()
	log.Logger = logger

	return logger, nil
}
