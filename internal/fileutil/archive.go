package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Archive keeps a local copy of every submitted clip under
// Dir/YYYY-MM-DD/<prompt>_<filename> with a sidecar.
type Archive struct {
	Dir string
}

// Save writes data and its sidecar and returns the clip path. meta.BLAKE3 and
// meta.Bytes are filled in from data.
func (a *Archive) Save(data []byte, meta *SubmissionMetadata) (string, error) {
	if a == nil || a.Dir == "" {
		return "", fmt.Errorf("archive directory not configured")
	}
	at := meta.SubmittedAt
	if at.IsZero() {
		at = time.Now()
	}
	dayDir := filepath.Join(a.Dir, at.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	name := SanitizeForFilename(meta.PromptID) + "_" + meta.Filename
	path, err := UniquePath(dayDir, name)
	if err != nil {
		return "", err
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("write clip: %w", err)
	}

	meta.Bytes = len(data)
	meta.BLAKE3 = Checksum(data)
	if err := WriteMetadata(path, meta); err != nil {
		return path, err
	}
	return path, nil
}
