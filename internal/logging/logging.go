package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// LevelNotice sits between info and warn. Discovered modes are logged at
// this level.
const LevelNotice = slog.Level(2)

// Config holds logger settings.
type Config struct {
	Level     string
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
	// JSON forces the JSON handler. When false the text handler is used on
	// a terminal and JSON otherwise.
	JSON bool
}

// New builds a logger writing to stderr, or to a rotating file when
// FilePath is set. The returned closer releases the file.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
		isTTY            = term.IsTerminal(int(os.Stderr.Fd()))
	)
	if cfg.FilePath != "" {
		rw, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		w, closer, isTTY = rw, rw, false
	}

	return NewWithWriter(w, cfg.Level, cfg.JSON || !isTTY), closer, nil
}

// NewWithWriter builds a logger on w at the given level.
func NewWithWriter(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceLevel,
	}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel converts a level name to a slog level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "notice", "warn", "warning", "error":
		return true
	}
	return false
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelNotice {
		a.Value = slog.StringValue("NOTICE")
	}
	return a
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
