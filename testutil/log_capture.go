package testutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/tiroq/speechcollect/internal/diaglog"
)

// LogCapture collects diaglog NDJSON output in memory for assertions.
type LogCapture struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

// NewLogCapture returns a capture and an enabled logger writing into it.
func NewLogCapture() (*LogCapture, *diaglog.Logger) {
	lc := &LogCapture{}
	return lc, diaglog.NewWriter(lc)
}

// Write implements io.Writer.
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// Close implements io.Closer.
func (lc *LogCapture) Close() error { return nil }

// String returns all captured output.
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Lines returns all captured log lines.
func (lc *LogCapture) Lines() []string {
	content := strings.TrimSpace(lc.String())
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}

// Entries decodes every captured line. Lines that are not JSON are skipped.
func (lc *LogCapture) Entries() []diaglog.LogEntry {
	var out []diaglog.LogEntry
	for _, line := range lc.Lines() {
		var e diaglog.LogEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Events returns the entries with the given event name.
func (lc *LogCapture) Events(event string) []diaglog.LogEntry {
	var out []diaglog.LogEntry
	for _, e := range lc.Entries() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// HasEvent reports whether at least one entry has the given event name.
func (lc *LogCapture) HasEvent(event string) bool {
	return len(lc.Events(event)) > 0
}
