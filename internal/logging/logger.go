package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects the log level and output format
type Config struct {
	Level   string // trace, debug, info, warn, error
	Console bool   // human readable output instead of JSON
}

// New builds a logger writing to out
func New(app string, cfg Config, out io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	if cfg.Console {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger(), nil
}

// InitLogger builds a stdout logger and installs it as the global logger
func InitLogger(app string, cfg Config) (zerolog.Logger, error) {
	logger, err := New(app, cfg, os.Stdout)
	if err != nil {
		return logger, err
	}
	log.Logger = logger
	return logger, nil
}

// StdLogger adapts a zerolog logger for libraries that want a *log.Logger
func StdLogger(logger zerolog.Logger, component string) *stdlog.Logger {
	return stdlog.New(logger.With().Str("component", component).Logger(), "", 0)
}
