// Package logging builds the process logger.
//
// stdout carries the MCP stdio transport, so log output always goes to
// stderr (or the writer passed in tests).
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/HendryAvila/specgate/internal/specerr"
)

// Config holds logger configuration.
type Config struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DefaultConfig logs info and above as text.
var DefaultConfig = Config{Level: "info", Format: "text"}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be one of: debug, info, warn, error", name)
	}
}

// New builds a logger writing to stderr.
func New(cfg Config) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", cfg.Format)
	}
	return slog.New(handler).With("service", "specgate"), nil
}

// Err returns an attribute for err. Engine errors expand into their op,
// kind and id so they can be filtered on.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	var se *specerr.Error
	if errors.As(err, &se) {
		return slog.Group("error",
			slog.String("op", se.Op),
			slog.String("kind", string(se.Kind)),
			slog.String("id", se.ID),
			slog.String("message", err.Error()),
		)
	}
	return slog.String("error", err.Error())
}
