package session

import (
	"errors"
	"testing"

	"github.com/tiroq/speechcollect/internal/audio"
)

func capturedSession(t *testing.T) (*Session, *audio.Blob) {
	t.Helper()
	s := New()
	if err := s.BeginRecording(); err != nil {
		t.Fatalf("BeginRecording: %v", err)
	}
	blob := &audio.Blob{Data: []byte("RIFF"), MIMEType: "audio/wav"}
	if err := s.CompleteRecording(blob, 3.0); err != nil {
		t.Fatalf("CompleteRecording: %v", err)
	}
	return s, blob
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageIdle, StageRecording, true},
		{StageIdle, StageCaptured, false},
		{StageIdle, StageSubmitting, false},
		{StageRecording, StageCaptured, true},
		{StageRecording, StageIdle, true},
		{StageRecording, StageSubmitting, false},
		{StageCaptured, StageRecording, true},
		{StageCaptured, StageTrimming, true},
		{StageCaptured, StageSubmitting, true},
		{StageTrimming, StageSubmitting, true},
		{StageTrimming, StageIdle, false},
		{StageSubmitting, StageIdle, true},
		{StageSubmitting, StageCaptured, true},
		{StageSubmitting, StageRecording, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNewSessionIsIdle(t *testing.T) {
	s := New()
	if s.Stage() != StageIdle {
		t.Errorf("expected idle, got %s", s.Stage())
	}
	if s.ID() == "" {
		t.Error("expected a session id")
	}
	if s.Blob() != nil || s.Selection() != nil || s.Prompt() != nil {
		t.Error("new session must be empty")
	}
	if New().ID() == s.ID() {
		t.Error("session ids must be unique")
	}
}

func TestCompleteRecordingStoresBlob(t *testing.T) {
	s, blob := capturedSession(t)
	if s.Stage() != StageCaptured {
		t.Fatalf("expected captured, got %s", s.Stage())
	}
	if s.Blob() != blob {
		t.Error("blob not stored")
	}
	snap := s.Snapshot()
	if snap.DurationSeconds == nil || *snap.DurationSeconds != 3.0 {
		t.Errorf("duration = %v", snap.DurationSeconds)
	}
}

func TestSelectionRequiresCapturedBlob(t *testing.T) {
	s := New()
	if err := s.SetSelection(1, 2); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition while idle, got %v", err)
	}
	if s.Selection() != nil {
		t.Error("selection must stay nil")
	}

	s, _ = capturedSession(t)
	if err := s.SetSelection(2, 1); err != nil {
		t.Fatalf("SetSelection: %v", err)
	}
	sel := s.Selection()
	if sel == nil || sel.Start != 2 || sel.End != 1 {
		t.Fatalf("selection = %+v", sel)
	}
	n := sel.Normalized()
	if n.Start != 1 || n.End != 2 || sel.Length() != 1 {
		t.Errorf("normalized = %+v, length %v", n, sel.Length())
	}
}

func TestNewRecordingDiscardsBlobAndSelection(t *testing.T) {
	s, _ := capturedSession(t)
	_ = s.SetSelection(1, 2)
	s.SetTranscript("hello")

	if err := s.BeginRecording(); err != nil {
		t.Fatalf("BeginRecording: %v", err)
	}
	if s.Blob() != nil {
		t.Error("blob must be discarded")
	}
	if s.Selection() != nil {
		t.Error("selection must be discarded")
	}
	if s.Transcript() != "hello" {
		t.Error("transcript survives new recordings")
	}
}

func TestNewBlobResetsSelection(t *testing.T) {
	s, _ := capturedSession(t)
	_ = s.SetSelection(0.5, 1.5)

	if err := s.LoadBlob(&audio.Blob{Data: []byte("x"), MIMEType: "audio/webm"}, 1); err != nil {
		t.Fatalf("LoadBlob: %v", err)
	}
	if s.Selection() != nil {
		t.Error("selection must reset when blob changes")
	}
}

func TestLoadBlobRejectedWhileRecording(t *testing.T) {
	s := New()
	_ = s.BeginRecording()
	err := s.LoadBlob(&audio.Blob{Data: []byte("x")}, 1)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAbortRecording(t *testing.T) {
	s := New()
	if err := s.AbortRecording("noop"); err != nil {
		t.Errorf("abort while idle must be a no-op, got %v", err)
	}
	_ = s.BeginRecording()
	if err := s.AbortRecording("capture_error"); err != nil {
		t.Fatalf("AbortRecording: %v", err)
	}
	if s.Stage() != StageIdle || s.Blob() != nil {
		t.Errorf("expected idle with no blob, got %s", s.Stage())
	}
}

func TestSubmissionOutcomes(t *testing.T) {
	t.Run("failure keeps state", func(t *testing.T) {
		s, blob := capturedSession(t)
		_ = s.SetSelection(1, 2)
		s.SetTranscript("hello")
		if err := s.Transition(StageSubmitting, "submit"); err != nil {
			t.Fatal(err)
		}
		if err := s.FailSubmission("server said no"); err != nil {
			t.Fatal(err)
		}
		snap := s.Snapshot()
		if snap.Stage != StageCaptured || snap.Blob != blob || snap.Selection == nil || snap.Transcript != "hello" {
			t.Errorf("state not preserved: %+v", snap)
		}
		if snap.LastError != "server said no" {
			t.Errorf("last error = %q", snap.LastError)
		}
	})

	t.Run("success clears captured work", func(t *testing.T) {
		s, _ := capturedSession(t)
		_ = s.SetSelection(1, 2)
		s.SetLastError("old")
		_ = s.Transition(StageTrimming, "trim")
		_ = s.Transition(StageSubmitting, "upload")
		if err := s.CompleteSubmission(); err != nil {
			t.Fatal(err)
		}
		snap := s.Snapshot()
		if snap.Stage != StageIdle || snap.Blob != nil || snap.Selection != nil || snap.LastError != "" {
			t.Errorf("expected reset, got %+v", snap)
		}
	})
}

func TestOnChangeObserversSeeSnapshots(t *testing.T) {
	s := New()
	var stages []Stage
	s.OnChange(func(snap Snapshot) {
		stages = append(stages, snap.Stage)
		// Observers run outside the lock and may read the session.
		_ = s.Stage()
	})
	_ = s.BeginRecording()
	_ = s.CompleteRecording(&audio.Blob{Data: []byte("x")}, 1)
	if err := s.Transition(StageIdle, "bad"); err == nil {
		t.Error("captured -> idle must be rejected")
	}

	want := []Stage{StageRecording, StageCaptured}
	if len(stages) != len(want) {
		t.Fatalf("observer calls = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, stages[i], want[i])
		}
	}
}

func TestHasTranscript(t *testing.T) {
	s := New()
	for _, tc := range []struct {
		text string
		want bool
	}{
		{"", false},
		{"   \n\t", false},
		{" hi ", true},
	} {
		s.SetTranscript(tc.text)
		if got := s.HasTranscript(); got != tc.want {
			t.Errorf("HasTranscript(%q) = %v", tc.text, got)
		}
	}
}
