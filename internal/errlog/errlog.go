// Package errlog appends failure descriptions to a plain-text error log.
//
// Every Record opens the file in append mode, writes one timestamp-prefixed
// line and closes it again, so the file is safe to tail while a run is in
// progress and survives a killed process without losing earlier lines.
package errlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// TimeFormat is the timestamp prefix of every line.
const TimeFormat = "2006-01-02 15:04:05.000000"

// Log is an append-only error log at a fixed path.
type Log struct {
	path string
	now  func() time.Time
}

// New returns a Log writing to path. Parent directories are created on first write.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the file the log appends to.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Record appends one line. A nil Log discards the message.
func (l *Log) Record(format string, args ...any) {
	if l == nil {
		return
	}
	msg := flatten(fmt.Sprintf(format, args...))

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn("cannot create error log directory", "dir", dir, "err", err)
			return
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn("cannot open error log", "path", l.path, "err", err)
		return
	}
	defer f.Close()

	logger := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      TimeFormat,
		TimeFunction:    func(time.Time) time.Time { return l.now() },
	})
	logger.Error(msg)
}

// flatten keeps one failure on one line.
func flatten(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
