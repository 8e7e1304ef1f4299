// Package logging provides file-based logging for gastown.
// It outputs logs to both a global log file (.gastown/logs/gastown.log)
// and job-specific log files (.gastown/logs/job-<id>.log).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/runoshun/gastown/internal/domain"
)

// Ensure Logger implements domain.Logger interface.
var _ domain.Logger = (*Logger)(nil)

// Logger writes leveled entries to the workspace log files.
// Fields are ordered to minimize memory padding.
type Logger struct {
	globalFile *os.File
	jobFiles   map[string]*os.File
	now        func() time.Time
	stateDir   string
	mu         sync.Mutex
	level      slog.Level
}

// New creates a new Logger that writes to the state directory's logs.
// If stateDir is empty, logging is disabled.
func New(stateDir string, level slog.Level) *Logger {
	return &Logger{
		stateDir: stateDir,
		level:    level,
		jobFiles: make(map[string]*os.File),
		now:      time.Now,
	}
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ensureGlobalFile opens or returns the global log file. Caller holds l.mu.
func (l *Logger) ensureGlobalFile() (*os.File, error) {
	if l.globalFile != nil {
		return l.globalFile, nil
	}
	f, err := openLog(domain.GlobalLogPath(l.stateDir))
	if err != nil {
		return nil, fmt.Errorf("open global log file: %w", err)
	}
	l.globalFile = f
	return f, nil
}

// ensureJobFile opens or returns the job log file. Caller holds l.mu.
func (l *Logger) ensureJobFile(jobID string) (*os.File, error) {
	if f, ok := l.jobFiles[jobID]; ok {
		return f, nil
	}
	f, err := openLog(domain.JobLogPath(l.stateDir, jobID))
	if err != nil {
		return nil, fmt.Errorf("open job log file: %w", err)
	}
	l.jobFiles[jobID] = f
	return f, nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	// G302: Log files are append-only and need read access by workspace users
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // Log file readable by owner and group
}

// CloseJob closes the log file of a finished job.
// A later entry for the job reopens the file in append mode.
func (l *Logger) CloseJob(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.jobFiles[jobID]; ok {
		_ = f.Close()
		delete(l.jobFiles, jobID)
	}
}

// Close closes all open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	if l.globalFile != nil {
		if err := l.globalFile.Close(); err != nil {
			lastErr = err
		}
		l.globalFile = nil
	}
	for id, f := range l.jobFiles {
		if err := f.Close(); err != nil {
			lastErr = err
		}
		delete(l.jobFiles, id)
	}
	return lastErr
}

// formatLog formats a log entry.
// Format: [2026-03-01 09:32:51] [INFO] [job-1a2b3c4d] [category] message
func formatLog(t time.Time, level slog.Level, jobID, category, msg string) string {
	scope := "global"
	if jobID != "" {
		scope = jobID
	}
	return fmt.Sprintf("[%s] [%s] [%s] [%s] %s\n",
		t.Format("2006-01-02 15:04:05"),
		levelToString(level),
		scope,
		category,
		msg,
	)
}

func levelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// log writes an entry to the global log and, for a job, to its own log.
func (l *Logger) log(level slog.Level, jobID, category, msg string) {
	if l.stateDir == "" {
		return // Logging disabled
	}
	if level < l.level {
		return
	}

	entry := formatLog(l.now(), level, jobID, category, msg)

	l.mu.Lock()
	defer l.mu.Unlock()

	if gf, err := l.ensureGlobalFile(); err == nil {
		_, _ = io.WriteString(gf, entry)
	}
	if jobID != "" {
		if jf, err := l.ensureJobFile(jobID); err == nil {
			_, _ = io.WriteString(jf, entry)
		}
	}
}

// Info logs an info message.
func (l *Logger) Info(jobID, category, msg string) {
	l.log(slog.LevelInfo, jobID, category, msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(jobID, category, msg string) {
	l.log(slog.LevelDebug, jobID, category, msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(jobID, category, msg string) {
	l.log(slog.LevelWarn, jobID, category, msg)
}

// Error logs an error message.
func (l *Logger) Error(jobID, category, msg string) {
	l.log(slog.LevelError, jobID, category, msg)
}
