package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the process logger. Output is a console writer on stderr
// unless json is set; debug lowers the level and adds caller and stack detail.
func Setup(debug, json bool) zerolog.Logger {
	return New(os.Stderr, debug, json)
}

// New is Setup with an explicit destination.
func New(w io.Writer, debug, json bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()

	if !json {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}})
	}

	if debug {
		logger = logger.With().Caller().Stack().Logger()
	}

	return logger
}
