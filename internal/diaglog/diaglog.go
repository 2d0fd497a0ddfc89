// Package diaglog writes structured NDJSON diagnostics for the capture and
// submission pipeline. Enabled by SPEECHCOLLECT_DEBUG=true; otherwise every
// Log call is a no-op and no file is created.
package diaglog

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DebugEnv is the environment variable that switches diagnostics on.
const DebugEnv = "SPEECHCOLLECT_DEBUG"

// ── Components ───────────────────────────────────────────────────────────────

const (
	ComponentSession  = "session"
	ComponentCapture  = "capture"
	ComponentWaveform = "waveform"
	ComponentTrim     = "trim"
	ComponentSubmit   = "submit"
	ComponentAPI      = "api-client"
	ComponentWSMic    = "ws-mic"
	ComponentDaemon   = "daemon"
	ComponentExport   = "diag-export"
)

// ── Events ───────────────────────────────────────────────────────────────────

const (
	EventStageChange      = "stage_change"
	EventCaptureStart     = "capture_start"
	EventCaptureStop      = "capture_stop"
	EventCaptureFailed    = "capture_failed"
	EventDeviceReleased   = "device_released"
	EventDecodeFailed     = "decode_failed"
	EventRegionChange     = "region_change"
	EventTrimApplied      = "trim_applied"
	EventTrimSkipped      = "trim_skipped"
	EventTrimFallback     = "trim_fallback"
	EventSubmitRejected   = "submit_rejected"
	EventSubmitOK         = "submit_ok"
	EventSubmitFailed     = "submit_failed"
	EventHTTPRetry        = "http_retry"
	EventPromptFetched    = "prompt_fetched"
	EventWSConnect        = "ws_connect"
	EventWSDisconnect     = "ws_disconnect"
	EventCommandReceived  = "command_received"
	EventArchiveWriteFail = "archive_write_failed"
)

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"` // RFC3339Nano
	Component string      `json:"component"`
	Event     string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// Logger appends LogEntry values to a size-capped NDJSON file.
type Logger struct {
	w       io.WriteCloser
	mu      sync.Mutex
	enabled bool
}

// MaxSizeMB caps the active log file; one rotated backup is kept.
const MaxSizeMB = 10

// New opens (or creates) the NDJSON log at path. With debug disabled, path is
// ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	// Open eagerly so a bad path is reported here rather than on first Log.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return &Logger{
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    MaxSizeMB,
			MaxBackups: 1,
		},
		enabled: true,
	}, nil
}

// NewWriter returns an enabled logger writing to w regardless of the debug
// env var. Used by tests and by callers that manage their own sink.
func NewWriter(w io.WriteCloser) *Logger {
	return &Logger{w: w, enabled: true}
}

// Log serialises entry as one JSON line. Sensitive payload keys and bearer
// credentials in Reason are redacted.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	entry.Reason = redactString(entry.Reason)
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(data)
}

// Close closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.w == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// IsDebugEnabled reports whether SPEECHCOLLECT_DEBUG is "true".
func IsDebugEnabled() bool {
	return os.Getenv(DebugEnv) == "true"
}

// NewNoOp returns a logger where every Log call is a no-op.
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
