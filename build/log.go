// Package build provides the process-wide logging plumbing: a rotating
// log file plus a registry of per-subsystem slog.Logger instances that
// every internal/* package attaches to.
package build

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
)

// LogType selects where a LogWriter sends bytes; the LoggingType
// constant holding the concrete value is declared by whichever of
// log_filelog.go / log_nofilelog.go the filelog build tag selects.
type LogType int

const (
	// LogTypeStdOut logs only to the terminal.
	LogTypeStdOut LogType = iota
	// LogTypeDefault tees to the terminal and a rotating log file.
	LogTypeDefault
)

// LogWriter is the io.Writer slog.NewBackend wraps. Its Write method
// is supplied per build-tag variant (log_filelog.go / log_nofilelog.go).
type LogWriter struct{}

// RotatingLogWriter owns the shared slog backend and the table of
// per-subsystem loggers every internal/* package attaches to.
type RotatingLogWriter struct {
	backend    *slog.Backend
	subsystems map[string]slog.Logger
}

// NewRotatingLogWriter returns a writer with no rotator yet attached;
// loggers created before InitLogRotator runs still work, writing to
// stdout only.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{
		backend:    slog.NewBackend(&LogWriter{}),
		subsystems: make(map[string]slog.Logger),
	}
}

// InitLogRotator creates (or rolls) the log file at logFile, keeping
// up to maxRollFiles previous logs around. Under the filelog build
// tag only the log directory is created: that variant manages its own
// single debug log file directly, bypassing rotation entirely.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxRollFiles int) error {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return fmt.Errorf("build: create log directory: %w", err)
	}
	return initRotator(logFile, maxRollFiles)
}

// GenSubLogger returns (creating if necessary) the logger for
// subsystem, backed by the shared rotating writer.
func (r *RotatingLogWriter) GenSubLogger(subsystem string) slog.Logger {
	if l, ok := r.subsystems[subsystem]; ok {
		return l
	}
	l := r.backend.Logger(subsystem)
	r.subsystems[subsystem] = l
	return l
}

// RegisterSubLogger records an already-built logger under subsystem,
// for callers that construct their own Logger instance rather than
// going through GenSubLogger.
func (r *RotatingLogWriter) RegisterSubLogger(subsystem string, logger slog.Logger) {
	r.subsystems[subsystem] = logger
}

// Close releases the underlying rotator, if one was initialized.
func (r *RotatingLogWriter) Close() error {
	return closeRotator()
}

// NewSubLogger builds subsystem's logger through genLogger (normally
// RotatingLogWriter.GenSubLogger), or returns a disabled logger if
// genLogger is nil, so package-level logger variables stay safe to
// read before logging setup has run.
func NewSubLogger(subsystem string, genLogger func(string) slog.Logger) slog.Logger {
	if genLogger == nil {
		return slog.Disabled
	}
	return genLogger(subsystem)
}
