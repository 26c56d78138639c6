// Package auditlog writes the connection-scoped audit trail: one line per
// authenticated connection event or tool invocation, tagged with the
// addresses the request arrived from. It is deliberately separate from the
// diagnostic logger; audit lines go to daily files of their own.
package auditlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultBufferSize    = 10
	defaultFlushInterval = 5 * time.Second
	daysToKeep           = 7
)

// Logger is a buffered audit file sink. Lines are flushed when the buffer
// reaches bufferSize or flushInterval elapses, whichever comes first. Write
// and close failures are reported to diag, never to callers.
type Logger struct {
	systemID      string
	dir           string
	bufferSize    int
	flushInterval time.Duration
	diag          *slog.Logger
	now           func() time.Time

	mu     sync.Mutex
	buffer []string
	timer  *time.Timer
	closed bool
}

// New opens an audit logger writing daily files under dir. Files older than
// seven days are cleaned up at startup.
func New(systemID, dir string, diag *slog.Logger) (*Logger, error) {
	if diag == nil {
		diag = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	l := &Logger{
		systemID:      systemID,
		dir:           dir,
		bufferSize:    defaultBufferSize,
		flushInterval: defaultFlushInterval,
		diag:          diag,
		now:           time.Now,
	}
	l.cleanOldLogs()
	return l, nil
}

// Info records an info-level audit line.
func (l *Logger) Info(content, headerAddr, socketAddr string) {
	l.log("INFO", content, headerAddr, socketAddr)
}

// Warn records a warn-level audit line.
func (l *Logger) Warn(content, headerAddr, socketAddr string) {
	l.log("WARN", content, headerAddr, socketAddr)
}

// Error records an error-level audit line.
func (l *Logger) Error(content, headerAddr, socketAddr string) {
	l.log("ERROR", content, headerAddr, socketAddr)
}

// log formats one line: TIMESTAMP [LEVEL] H:addr S:addr - content.
func (l *Logger) log(level, content, headerAddr, socketAddr string) {
	line := fmt.Sprintf("%s [%s] H:%s S:%s - %s",
		l.now().UTC().Format(time.RFC3339), level, headerAddr, socketAddr, content)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.buffer = append(l.buffer, line)

	if len(l.buffer) >= l.bufferSize {
		l.flushLocked()
		return
	}
	if l.timer == nil {
		l.timer = time.AfterFunc(l.flushInterval, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if !l.closed {
				l.flushLocked()
			}
		})
	}
}

// Flush forces buffered lines to disk.
func (l *Logger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
}

// Close flushes and stops the logger. Further lines are dropped.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
	l.closed = true
}

// flushLocked appends the buffer to today's file. Caller holds mu.
func (l *Logger) flushLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if len(l.buffer) == 0 {
		return
	}
	lines := l.buffer
	l.buffer = nil

	path := filepath.Join(l.dir, l.fileName())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.diag.Warn("audit.flush.fail", slog.String("path", path), slog.String("err", err.Error()))
		l.buffer = append(lines, l.buffer...)
		return
	}
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		l.diag.Warn("audit.flush.fail", slog.String("path", path), slog.String("err", err.Error()))
	}
	if err := f.Close(); err != nil {
		l.diag.Warn("audit.close.fail", slog.String("path", path), slog.String("err", err.Error()))
	}
}

// fileName is YYYY-MM-DD_<systemID>.log for the current day.
func (l *Logger) fileName() string {
	return l.now().UTC().Format("2006-01-02") + "_" + l.systemID + ".log"
}

// cleanOldLogs removes files whose date prefix is older than daysToKeep.
// File names sort lexicographically by date, so a string compare suffices.
func (l *Logger) cleanOldLogs() {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		l.diag.Warn("audit.clean.fail", slog.String("err", err.Error()))
		return
	}
	cutoff := l.now().UTC().AddDate(0, 0, -daysToKeep).Format("2006-01-02")
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		if e.Name() < cutoff {
			if err := os.Remove(filepath.Join(l.dir, e.Name())); err != nil {
				l.diag.Warn("audit.clean.fail",
					slog.String("file", e.Name()),
					slog.String("err", err.Error()),
				)
			}
		}
	}
}
