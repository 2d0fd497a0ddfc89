package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Version is injected at link time from the main package; defaults to "dev".
var Version = "dev"

// DiagBundle is the first line of an export file.
type DiagBundle struct {
	ExportedAt string   `json:"exported_at"`
	AppVersion string   `json:"app_version"`
	GoVersion  string   `json:"go_version"`
	OS         string   `json:"os"`
	Arch       string   `json:"arch"`
	LogFiles   []string `json:"log_files"`
	EntryCount int      `json:"entry_count"`
}

// Export concatenates the rotated backups of logPath (oldest first) and the
// active file into dest/speechcollect-diag-<ts>.ndjson behind a DiagBundle
// header line. Returns the written path and the number of entries copied.
func Export(logPath, dest string) (path string, lines int, err error) {
	if _, err := os.Stat(logPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}

	sources := append(rotatedBackups(logPath), logPath)
	var rawLines [][]byte
	for _, src := range sources {
		ls, err := readLines(src)
		if err != nil {
			return "", 0, fmt.Errorf("log file unreadable: %w", err)
		}
		rawLines = append(rawLines, ls...)
	}

	tstamp := time.Now().UTC().Format("20060102T150405")
	outPath := filepath.Join(dest, "speechcollect-diag-"+tstamp+".ndjson")

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer func() { _ = out.Close() }()

	bundle := DiagBundle{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		AppVersion: Version,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		LogFiles:   sources,
		EntryCount: len(rawLines),
	}
	header, err := json.Marshal(bundle)
	if err != nil {
		return "", 0, err
	}

	w := bufio.NewWriter(out)
	if _, err := w.Write(append(header, '\n')); err != nil {
		return "", 0, err
	}
	for _, line := range rawLines {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return "", 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}
	return outPath, len(rawLines), nil
}

// rotatedBackups lists lumberjack backups of logPath
// (<name>-<timestamp><ext>), oldest first.
func rotatedBackups(logPath string) []string {
	ext := filepath.Ext(logPath)
	prefix := strings.TrimSuffix(logPath, ext) + "-"
	matches, err := filepath.Glob(prefix + "*" + ext)
	if err != nil {
		return nil
	}
	// lumberjack timestamps sort lexically
	sort.Strings(matches)
	return matches
}

func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), MaxSizeMB*1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		out = append(out, line)
	}
	return out, scanner.Err()
}
