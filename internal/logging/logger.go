package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "trustwire"

// New builds the process logger. Local environments get a human readable console writer,
// everything else logs JSON lines to stdout.
func New(environment, level string) (zerolog.Logger, error) {
	return NewWithWriter(environment, level, nil)
}

// NewWithWriter is New with an explicit sink. A nil writer selects stdout.
func NewWithWriter(environment, level string, out io.Writer) (zerolog.Logger, error) {
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse LOG_LEVEL=%q: %w", level, err)
	}

	if out == nil {
		out = os.Stdout
	}

	var writer io.Writer = out
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(writer).
		Level(parsedLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return logger, nil
}

// Stderr returns a logger for commands whose stdout is a data channel.
func Stderr(environment, level string) (zerolog.Logger, error) {
	return NewWithWriter(environment, level, os.Stderr)
}
