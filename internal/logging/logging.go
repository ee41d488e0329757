// Package logging wires github.com/rs/zerolog into a single
// process-wide logger, configurable by format/level/component, plus a
// ring-buffer broadcaster so a log-tail endpoint (out of scope here) can
// subscribe to recent lines. Mirrors the teacher's internal/logging
// package shape.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultTimeFmt = time.RFC3339

var (
	mu            sync.Mutex
	baseWriter    io.Writer = os.Stderr
	baseComponent string
	baseLogger    = zerolog.New(baseWriter).With().Timestamp().Logger()
	nowFn                   = time.Now
)

// Config controls process-wide logger initialization.
type Config struct {
	Format    string // "json" or "console"
	Level     string // zerolog level name, e.g. "debug", "info", "warn"
	Component string // attached to every log line as "component"
}

// Init configures the global zerolog logger and the package-level
// broadcaster used for log tailing. Safe to call once at startup.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = defaultTimeFmt

	var w io.Writer = os.Stderr
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	baseWriter = io.MultiWriter(w, broadcaster)
	baseComponent = cfg.Component

	logCtx := zerolog.New(baseWriter).With().Timestamp()
	if baseComponent != "" {
		logCtx = logCtx.Str("component", baseComponent)
	}
	baseLogger = logCtx.Logger()
	log.Logger = baseLogger
}

// Component returns a child logger tagged with a sub-component name, for
// packages that want their own "component" field (e.g. "alertrules",
// "rootcause") distinct from the process-wide one set in Init.
func Component(name string) zerolog.Logger {
	return baseLogger.With().Str("component", name).Logger()
}
