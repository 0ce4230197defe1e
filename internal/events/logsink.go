package events

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// defaultMaxLogSizeBytes bounds the rotating log file. lumberjack isn't
// in the pack, so rotation here is a size-checked rename rather than a
// full rotation library.
const defaultMaxLogSizeBytes = 10 * 1024 * 1024

// LogSink writes every event as a zerolog JSON line to a file and, for
// info and above, a colorized one-line summary to stdout when stdout is
// a terminal. Grounded on drallgood-audiobookshelf-hardcover-sync's
// internal/logger.Config/setupLogger (level, format, timestamped
// zerolog.Logger over a configurable Output), adapted from a
// process-wide singleton logger to one Sink instance per run.
type LogSink struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	file     *os.File
	logger   zerolog.Logger
	console  bool
}

// NewLogSink opens (or creates) path for append and prepares the
// console writer. Console output is suppressed automatically when
// stdout isn't a terminal, e.g. when redirected to a file or piped.
func NewLogSink(path string) (*LogSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create event log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &LogSink{
		path:     path,
		maxBytes: defaultMaxLogSizeBytes,
		file:     f,
		logger:   zerolog.New(f).With().Timestamp().Logger(),
		console:  isatty.IsTerminal(os.Stdout.Fd()),
	}, nil
}

// Emit writes e to the log file and, if applicable, stdout.
func (s *LogSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rotateIfNeeded()

	le := s.logger.WithLevel(zerologLevel(e.Level)).
		Str("component", e.Component).
		Time("ts", e.Timestamp)
	for k, v := range e.Fields {
		le = le.Interface(k, v)
	}
	le.Msg(e.Message)

	if s.console && e.Level >= LevelInfo {
		fmt.Fprintln(os.Stdout, consoleLine(e))
	}
}

// Close releases the underlying file handle.
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// rotateIfNeeded renames the log once it crosses maxBytes and reopens a
// fresh file at the original path. Caller must hold s.mu.
func (s *LogSink) rotateIfNeeded() {
	info, err := s.file.Stat()
	if err != nil || info.Size() < s.maxBytes {
		return
	}

	rotated := s.path + "." + time.Now().Format("20060102T150405")
	if err := os.Rename(s.path, rotated); err != nil {
		return
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		// Rotation failed; keep writing to the (now rotated-away) handle
		// rather than lose events entirely.
		return
	}
	s.file.Close()
	s.file = f
	s.logger = zerolog.New(f).With().Timestamp().Logger()
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func consoleLine(e Event) string {
	ts := e.Timestamp.Format("15:04:05")
	var c *color.Color
	switch e.Level {
	case LevelDebug:
		c = color.New(color.FgHiBlack)
	case LevelInfo:
		c = color.New(color.FgCyan)
	case LevelWarning:
		c = color.New(color.FgYellow)
	case LevelError:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.Reset)
	}
	tag := c.Sprintf("[%-7s %s]", strings.ToUpper(e.Level.String()), e.Component)
	return fmt.Sprintf("%s %s %s", ts, tag, e.Message)
}
