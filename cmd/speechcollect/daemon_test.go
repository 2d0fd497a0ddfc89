package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiroq/speechcollect/internal/api"
	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/capture"
	"github.com/tiroq/speechcollect/internal/diaglog"
	"github.com/tiroq/speechcollect/internal/ipc"
	"github.com/tiroq/speechcollect/internal/session"
	"github.com/tiroq/speechcollect/internal/submit"
	"github.com/tiroq/speechcollect/internal/waveform"
	"github.com/tiroq/speechcollect/internal/workbench"
	"github.com/tiroq/speechcollect/testutil"
)

func newTestDaemon(t *testing.T) (*daemon, *testutil.MockBackend, *bool) {
	t.Helper()
	backend := testutil.NewMockBackend()
	t.Cleanup(backend.Close)
	client := api.NewClient(api.Config{BaseURL: backend.URL}, api.StaticToken("tok"))

	wav := testutil.SineWAV(t, 8000, 1, 1.0)
	mic := &testutil.FakeMicrophone{MIME: audio.MIMETypeWAV, Chunks: [][]byte{wav}}
	sess := session.New()
	wb := workbench.New(
		sess,
		capture.NewController(mic, sess),
		waveform.New(audio.WAVDecoder{}, &testutil.FakePlayer{}, sess),
		submit.New(client, audio.WAVDecoder{}, sess, submit.Options{TrimEnabled: true}),
		client,
	)
	t.Cleanup(func() { _ = wb.Close() })

	quit := false
	d := &daemon{
		dir:     t.TempDir(),
		wb:      wb,
		backend: "fake",
		logger:  diaglog.NewNoOp(),
		quit:    func() { quit = true },
	}
	return d, backend, &quit
}

func send(t *testing.T, d *daemon, line string) {
	t.Helper()
	cmd, err := ipc.ParseCommand(line)
	if err != nil {
		t.Fatalf("ParseCommand(%q): %v", line, err)
	}
	if err := ipc.WriteCommand(d.dir, cmd); err != nil {
		t.Fatal(err)
	}
	d.handle(context.Background())
}

func TestDaemonHandle_UpdatesStatus(t *testing.T) {
	d, backend, _ := newTestDaemon(t)
	backend.QueuePrompt(7, "read this")

	send(t, d, "next")
	send(t, d, "start")
	send(t, d, "stop")
	send(t, d, "select 0.25 0.75")

	st, err := ipc.ReadStatus(d.dir)
	testutil.AssertNoError(t, err, "read status")
	testutil.AssertEqual(t, session.StageCaptured, st.Stage, "stage")
	testutil.AssertEqual(t, "7", st.PromptID, "prompt")
	testutil.AssertEqual(t, "select", st.LastAction, "last action")
	testutil.AssertEqual(t, "fake", st.Backend, "backend")
	if st.Selection == nil {
		t.Fatal("selection expected in status")
	}
	testutil.AssertInRange(t, st.Selection[0], 0.24, 0.26, "selection start")

	cmd, err := ipc.ReadCommand(d.dir)
	testutil.AssertNoError(t, err, "command consumed")
	if cmd != nil {
		t.Errorf("command file not cleared: %v", cmd)
	}
}

func TestDaemonHandle_FailureRecordedInStatus(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	send(t, d, "submit")

	st, err := ipc.ReadStatus(d.dir)
	testutil.AssertNoError(t, err, "read status")
	testutil.AssertEqual(t, session.StageIdle, st.Stage, "stage unchanged")
	testutil.AssertStringContains(t, st.LastError, submit.ReasonNoPrompt, "reason surfaced")
}

func TestDaemonHandle_Malformed(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	if err := os.WriteFile(ipc.CommandPath(d.dir), []byte("dance now\n"), 0644); err != nil {
		t.Fatal(err)
	}
	d.handle(context.Background())

	st, err := ipc.ReadStatus(d.dir)
	testutil.AssertNoError(t, err, "read status")
	testutil.AssertStringContains(t, st.LastError, "dance", "bad command reported")
}

func TestDaemonHandle_Quit(t *testing.T) {
	d, _, quit := newTestDaemon(t)
	send(t, d, "quit")
	testutil.AssertTrue(t, *quit, "quit called")
}

func TestDaemonHandle_NothingPending(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	d.handle(context.Background())
	if _, err := os.Stat(ipc.StatusPath(d.dir)); !os.IsNotExist(err) {
		t.Errorf("status written without a command: %v", err)
	}
}

func TestChangedSince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmd.txt")
	testutil.AssertFalse(t, changedSince(path, time.Now()), "missing file")
	if err := os.WriteFile(path, []byte("start"), 0644); err != nil {
		t.Fatal(err)
	}
	testutil.AssertTrue(t, changedSince(path, time.Now().Add(-time.Minute)), "newer file")
	testutil.AssertFalse(t, changedSince(path, time.Now().Add(time.Minute)), "older file")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&submit.ValidationError{Reason: submit.ReasonNoPrompt}, 3},
		{capture.ErrPermissionDenied, 4},
		{os.ErrNotExist, 1},
		{context.Canceled, 2},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
