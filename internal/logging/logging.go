// Package logging configures the process-wide zerolog logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Config controls logger initialization.
type Config struct {
	Format    string // "json", "console", or "auto"
	Level     string // "debug", "info", "warn", "error"
	Component string // optional component name
	FilePath  string // optional log file, appended to
}

type ctxKey struct{}

var (
	mu         sync.Mutex
	fileCloser io.Closer

	isTerminalFn = term.IsTerminal
	stderr       io.Writer = os.Stderr
)

func init() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Init configures zerolog globals and returns the base logger, which is
// also installed as log.Logger.
func Init(cfg Config) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	writer := selectWriter(cfg.Format)
	if fileCloser != nil {
		_ = fileCloser.Close()
		fileCloser = nil
	}
	if path := strings.TrimSpace(cfg.FilePath); path != "" {
		f, err := openLogFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: unable to open %s: %v\n", path, err)
		} else {
			writer = io.MultiWriter(writer, f)
			fileCloser = f
		}
	}

	builder := zerolog.New(writer).With().Timestamp()
	if c := strings.TrimSpace(cfg.Component); c != "" {
		builder = builder.Str("component", c)
	}
	log.Logger = builder.Logger()
	return log.Logger
}

// Shutdown closes the log file, if any.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if fileCloser != nil {
		_ = fileCloser.Close()
		fileCloser = nil
	}
}

// WithJob returns a context whose logger carries the job id.
func WithJob(ctx context.Context, jobID string) context.Context {
	l := FromContext(ctx).With().Str("job", jobID).Logger()
	return context.WithValue(ctx, ctxKey{}, &l)
}

// FromContext returns the logger stored by WithJob, or the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return l
		}
	}
	l := log.Logger
	return &l
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	case "trace":
		return zerolog.TraceLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		fmt.Fprintf(os.Stderr, "logging: invalid level %q; using %q\n", level, "info")
		return zerolog.InfoLevel
	}
}

func selectWriter(format string) io.Writer {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		return zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
	case "json":
		return stderr
	case "auto", "":
		if f, ok := stderr.(*os.File); ok && isTerminalFn(int(f.Fd())) {
			return zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
		}
		return stderr
	default:
		fmt.Fprintf(os.Stderr, "logging: invalid format %q; using %q\n", format, "json")
		return stderr
	}
}

func openLogFile(path string) (*os.File, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
