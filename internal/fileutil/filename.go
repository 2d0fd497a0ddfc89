package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tiroq/speechcollect/internal/audio"
)

var (
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|]`)
	whitespace   = regexp.MustCompile(`[\s_]+`)
)

// RecordingFilename returns the upload name of a clip:
// recording-<unix-ms>.<ext>, the extension derived from the MIME type.
func RecordingFilename(at time.Time, mimeType string) string {
	return fmt.Sprintf("recording-%d.%s", at.UnixMilli(), audio.ExtensionForMIME(mimeType))
}

// SanitizeForFilename makes a prompt id or label safe for use in a filename.
func SanitizeForFilename(input string) string {
	if input == "" {
		return "prompt"
	}

	sanitized := illegalChars.ReplaceAllString(input, "_")
	sanitized = whitespace.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-.")

	if len(sanitized) > 50 {
		sanitized = strings.TrimRight(sanitized[:50], "-")
	}
	if sanitized == "" {
		return "prompt"
	}
	return sanitized
}

// UniquePath returns dir/name, or dir/base_N.ext for the first N >= 2 that
// does not exist yet.
func UniquePath(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 2; i < 1000; i++ {
		try := filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if _, err := os.Stat(try); os.IsNotExist(err) {
			return try, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}
