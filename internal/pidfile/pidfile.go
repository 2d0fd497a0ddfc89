// Package pidfile keeps a single daemon per control directory.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// RunningError reports the pid holding the lock.
type RunningError struct {
	PID int
}

func (e *RunningError) Error() string {
	return fmt.Sprintf("another instance is already running (PID %d)", e.PID)
}

// Lock is a held pid file.
type Lock struct {
	path string
	pid  int
}

// Acquire creates path with the current pid. A file left by a process that
// is gone is replaced; a live owner yields *RunningError.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}

	pid := os.Getpid()
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", pid)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write pid file: %w", errors.Join(werr, cerr))
			}
			return &Lock{path: path, pid: pid}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create pid file: %w", err)
		}

		owner, ok := readPID(path)
		if ok && owner != pid && isProcessRunning(owner) {
			return nil, &RunningError{PID: owner}
		}
		// Stale or unreadable: take it over.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale pid file: %w", err)
		}
	}
	return nil, fmt.Errorf("pid file %s keeps reappearing", path)
}

// Release removes the file if it still names this process.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if owner, ok := readPID(l.path); ok && owner == l.pid {
		return os.Remove(l.path)
	}
	return nil
}

// Owner returns the pid recorded in path, 0 when there is none or it is not
// running.
func Owner(path string) int {
	pid, ok := readPID(path)
	if !ok || !isProcessRunning(pid) {
		return 0
	}
	return pid
}

// Path returns <dir>/<name>.pid.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".pid")
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// Exists, owned by someone else.
		return true
	default:
		return false
	}
}
