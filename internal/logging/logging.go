// Package logging provides named zerolog loggers that write to the console and to one file per
// logger name per day (<dir>/<name>_YYYYMMDD.log).
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultName is the logger used by LogEvent and LogRequest.
const DefaultName = "supportbot"

// Options configures Init.
type Options struct {
	// Dir receives the per-day log files. Empty disables file output.
	Dir string
	// Level is a zerolog level name (debug, info, warn, error).
	Level string
	// Format selects "json" or human-readable console output.
	Format string
	// Console defaults to os.Stdout.
	Console io.Writer
}

var (
	mu      sync.Mutex
	opts    = Options{Console: os.Stderr}
	files   = map[string]*os.File{}
	loggers = map[string]zerolog.Logger{}
	now     = time.Now
)

// Init (re)configures logging. Previously opened log files are closed.
func Init(o Options) error {
	mu.Lock()
	defer mu.Unlock()

	closeFilesLocked()
	if o.Console == nil {
		o.Console = os.Stdout
	}
	if o.Dir != "" {
		if err := os.MkdirAll(o.Dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	opts = o
	_, err := newLocked(DefaultName)
	return err
}

// Close flushes and closes all log files and reverts to console-only logging.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	err := closeFilesLocked()
	opts = Options{Console: os.Stderr, Level: opts.Level, Format: opts.Format}
	return err
}

func closeFilesLocked() error {
	var firstErr error
	for name, f := range files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(files, name)
	}
	for name := range loggers {
		delete(loggers, name)
	}
	return firstErr
}

// New returns the logger for name, opening its log file on first use.
// If the file cannot be opened the logger falls back to console output.
func New(name string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	l, err := newLocked(name)
	if err != nil {
		l.Warn().Err(err).Msg("file logging disabled")
	}
	return l
}

func newLocked(name string) (zerolog.Logger, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	if l, ok := loggers[name]; ok {
		return l, nil
	}

	var console io.Writer = opts.Console
	if !strings.EqualFold(opts.Format, "json") {
		console = zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{console}

	var openErr error
	if opts.Dir != "" {
		path := FilePath(opts.Dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			openErr = err
		} else {
			files[name] = f
			writers = append(writers, f)
		}
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(opts.Level)).
		With().Timestamp().Str("logger", name).Logger()
	loggers[name] = l
	return l, openErr
}

// FilePath returns today's log file for name under dir.
func FilePath(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, now().Format("20060102")))
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func defaultLogger() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	l, _ := newLocked(DefaultName)
	return l
}

// LogEvent writes an informational message on the default logger.
func LogEvent(format string, args ...any) {
	l := defaultLogger()
	l.Info().Msg(fmt.Sprintf(format, args...))
}

// LogRequest traces one request or response exchanged with the model server at debug level.
func LogRequest(direction, host, model string, payload any) {
	l := defaultLogger()
	l.Debug().
		Str("direction", normalizeDirection(direction)).
		Str("host", valueOrUnknown(host)).
		Str("model", valueOrUnknown(model)).
		Str("payload", formatPayload(payload)).
		Msg("backend exchange")
}

func normalizeDirection(direction string) string {
	return strings.ToUpper(strings.TrimSpace(direction))
}

func valueOrUnknown(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return "unknown"
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
