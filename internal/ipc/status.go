package ipc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tiroq/speechcollect/internal/fileutil"
	"github.com/tiroq/speechcollect/internal/session"
)

// StatusSnapshot is the daemon's view of the session, written after every
// change.
type StatusSnapshot struct {
	SessionID       string        `json:"session_id"`
	Stage           session.Stage `json:"stage"`
	PromptID        string        `json:"prompt_id,omitempty"`
	PromptText      string        `json:"prompt_text,omitempty"`
	Transcript      string        `json:"transcript"`
	HasRecording    bool          `json:"has_recording"`
	MIMEType        string        `json:"mime_type,omitempty"`
	Bytes           int           `json:"bytes"`
	DurationSeconds float64       `json:"duration_seconds"`
	Selection       *[2]float64   `json:"selection,omitempty"` // normalized
	Playing         bool          `json:"playing"`
	LastAction      string        `json:"last_action"`
	LastError       string        `json:"last_error"`
	Backend         string        `json:"capture_backend"`
	Timestamp       time.Time     `json:"timestamp"`
}

// StatusFrom fills the session fields of a StatusSnapshot.
func StatusFrom(snap session.Snapshot) *StatusSnapshot {
	st := &StatusSnapshot{
		SessionID:  snap.ID,
		Stage:      snap.Stage,
		Transcript: snap.Transcript,
		LastError:  snap.LastError,
		Timestamp:  time.Now(),
	}
	if snap.Prompt != nil {
		st.PromptID = snap.Prompt.ID
		st.PromptText = snap.Prompt.Text
	}
	if snap.Blob != nil {
		st.HasRecording = true
		st.MIMEType = snap.Blob.MIMEType
		st.Bytes = snap.Blob.Len()
	}
	if snap.DurationSeconds != nil {
		st.DurationSeconds = *snap.DurationSeconds
	}
	if snap.Selection != nil {
		n := snap.Selection.Normalized()
		st.Selection = &[2]float64{n.Start, n.End}
	}
	return st
}

// StatusPath returns the status file inside dir.
func StatusPath(dir string) string {
	return filepath.Join(dir, "status.json")
}

// WriteStatus replaces dir/status.json atomically.
func WriteStatus(dir string, status *StatusSnapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return fileutil.WriteFileAtomic(StatusPath(dir), append(data, '\n'))
}

// ReadStatus loads dir/status.json.
func ReadStatus(dir string) (*StatusSnapshot, error) {
	data, err := os.ReadFile(StatusPath(dir))
	if err != nil {
		return nil, err
	}
	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}
