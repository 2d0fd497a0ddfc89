package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func readFile(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("invalid pid in file: %q", data)
	}
	return pid
}

func TestAcquire(t *testing.T) {
	path := Path(filepath.Join(t.TempDir(), "nested"), "daemon")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	if got := readFile(t, path); got != os.Getpid() {
		t.Errorf("pid = %d, want %d", got, os.Getpid())
	}
	if got := Owner(path); got != os.Getpid() {
		t.Errorf("Owner = %d, want %d", got, os.Getpid())
	}
}

func TestAcquire_LiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	// The parent of the test binary is alive for the duration of the test.
	parent := os.Getppid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(parent)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Acquire(path)
	var running *RunningError
	if !errors.As(err, &running) {
		t.Fatalf("Acquire error = %v, want RunningError", err)
	}
	if running.PID != parent {
		t.Errorf("RunningError.PID = %d, want %d", running.PID, parent)
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Errorf("error text = %q", err)
	}
}

func TestAcquire_StaleFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead pid", "99999999\n"},
		{"garbage", "not-a-pid"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "daemon.pid")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			lock, err := Acquire(path)
			if err != nil {
				t.Fatalf("Acquire over stale file: %v", err)
			}
			defer lock.Release()
			if got := readFile(t, path); got != os.Getpid() {
				t.Errorf("pid = %d, want %d", got, os.Getpid())
			}
		})
	}
}

func TestRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	lock, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pid file still exists after release")
	}
	if Owner(path) != 0 {
		t.Error("Owner of a missing file must be 0")
	}

	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release: %v", err)
	}
}

func TestRelease_OnlyOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	lock, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}

	other := os.Getpid() + 1
	if err := os.WriteFile(path, []byte(strconv.Itoa(other)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_ = lock.Release()

	if got := readFile(t, path); got != other {
		t.Errorf("pid = %d, want untouched %d", got, other)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process should be detected as running")
	}
	if isProcessRunning(99999999) {
		t.Error("non-existent process should not be detected as running")
	}
}
