// Package fileutil names recordings and keeps the optional local archive of
// submitted clips.
package fileutil

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lukechampine.com/blake3"
)

// SubmissionMetadata is the sidecar written alongside each archived clip.
type SubmissionMetadata struct {
	Version         string      `json:"version"`
	SessionID       string      `json:"session_id"`
	PromptID        string      `json:"prompt_id"`
	PromptText      string      `json:"prompt_text,omitempty"`
	SpokenText      string      `json:"spoken_text"`
	Filename        string      `json:"filename"`
	MIMEType        string      `json:"mime_type"`
	Bytes           int         `json:"bytes"`
	BLAKE3          string      `json:"blake3"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
	Trimmed         bool        `json:"trimmed"`
	Selection       *[2]float64 `json:"selection,omitempty"`
	Warnings        []string    `json:"warnings,omitempty"`
	BackendMessage  string      `json:"backend_message,omitempty"`
	SubmittedAt     time.Time   `json:"submitted_at"`
}

// Checksum returns the hex BLAKE3-256 digest of data.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WriteMetadata writes a <basepath>.meta.json sidecar file alongside the
// recording.
func WriteMetadata(recordingPath string, meta *SubmissionMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := WriteFileAtomic(MetadataPath(recordingPath), append(data, '\n')); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the sidecar of recordingPath.
func ReadMetadata(recordingPath string) (*SubmissionMetadata, error) {
	data, err := os.ReadFile(MetadataPath(recordingPath))
	if err != nil {
		return nil, err
	}
	var meta SubmissionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

// MetadataPath returns <basepath>.meta.json for a given recording file path.
func MetadataPath(recordingPath string) string {
	ext := filepath.Ext(recordingPath)
	base := recordingPath[:len(recordingPath)-len(ext)]
	return base + ".meta.json"
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// and a rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".write-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
