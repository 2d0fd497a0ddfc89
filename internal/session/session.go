// Package session holds the single live RecordingSession of a record page and
// the stage machine that gates which actions are allowed.
package session

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/diaglog"
)

// Stage is the current point in the capture→submit lifecycle.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageRecording  Stage = "recording"
	StageCaptured   Stage = "captured"
	StageTrimming   Stage = "trimming"
	StageSubmitting Stage = "submitting"
)

// ErrInvalidTransition is returned when an action is not allowed in the
// current stage.
var ErrInvalidTransition = errors.New("invalid stage transition")

// transitions lists every allowed stage change.
var transitions = map[Stage][]Stage{
	StageIdle:       {StageRecording},
	StageRecording:  {StageCaptured, StageIdle},
	StageCaptured:   {StageRecording, StageTrimming, StageSubmitting},
	StageTrimming:   {StageSubmitting},
	StageSubmitting: {StageIdle, StageCaptured},
}

// CanTransition reports whether from → to is an allowed stage change.
func CanTransition(from, to Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Selection is a region in seconds on the decoded audio. Start and End may be
// unordered; use Normalized before doing arithmetic with them.
type Selection struct {
	Start float64
	End   float64
}

// Normalized returns the selection with Start <= End.
func (s Selection) Normalized() Selection {
	return Selection{Start: math.Min(s.Start, s.End), End: math.Max(s.Start, s.End)}
}

// Length returns the absolute length in seconds.
func (s Selection) Length() float64 {
	n := s.Normalized()
	return n.End - n.Start
}

// Prompt is the text a contributor is asked to read aloud.
type Prompt struct {
	ID     string `json:"id"`
	Text   string `json:"prompt_text"`
	Status string `json:"status,omitempty"`
}

// Snapshot is a copy of the session state safe to hand to renderers and
// status writers.
type Snapshot struct {
	ID              string
	Stage           Stage
	Blob            *audio.Blob
	DurationSeconds *float64
	Selection       *Selection
	Transcript      string
	Prompt          *Prompt
	LastError       string
}

// Session is the RecordingSession. All mutation goes through its methods so
// the stage rules and the "new blob resets selection" invariant hold.
type Session struct {
	mu sync.RWMutex

	id         string
	stage      Stage
	blob       *audio.Blob
	duration   *float64
	selection  *Selection
	transcript string
	prompt     *Prompt
	lastError  string
	changedAt  time.Time

	logger   *diaglog.Logger
	onChange []func(Snapshot)
}

// New creates an Idle session with a fresh id.
func New() *Session {
	return &Session{
		id:        uuid.NewString(),
		stage:     StageIdle,
		changedAt: time.Now(),
	}
}

// SetLogger injects the diagnostic logger.
func (s *Session) SetLogger(l *diaglog.Logger) {
	s.mu.Lock()
	s.logger = l
	s.mu.Unlock()
}

// OnChange registers an observer called after every mutation with a fresh
// snapshot. Observers run synchronously on the mutating goroutine.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// ID returns the session id used in diagnostic logs.
func (s *Session) ID() string {
	return s.id
}

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// Blob returns the current captured blob, nil when nothing is captured.
func (s *Session) Blob() *audio.Blob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blob
}

// Selection returns the current selection, nil when none is set.
func (s *Session) Selection() *Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selection == nil {
		return nil
	}
	sel := *s.selection
	return &sel
}

// Transcript returns the transcript text.
func (s *Session) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript
}

// Prompt returns the active prompt, nil when none was fetched.
func (s *Session) Prompt() *Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompt
}

// Snapshot returns a copy of the full state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:         s.id,
		Stage:      s.stage,
		Blob:       s.blob,
		Transcript: s.transcript,
		Prompt:     s.prompt,
		LastError:  s.lastError,
	}
	if s.duration != nil {
		d := *s.duration
		snap.DurationSeconds = &d
	}
	if s.selection != nil {
		sel := *s.selection
		snap.Selection = &sel
	}
	return snap
}

// Transition moves the session to stage to, or returns ErrInvalidTransition.
func (s *Session) Transition(to Stage, reason string) error {
	return s.mutate(func() error {
		return s.transitionLocked(to, reason)
	})
}

func (s *Session) transitionLocked(to Stage, reason string) error {
	from := s.stage
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	s.stage = to
	s.changedAt = time.Now()
	s.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentSession,
		Event:     diaglog.EventStageChange,
		SessionID: s.id,
		Reason:    reason,
		Payload:   map[string]interface{}{"from": string(from), "to": string(to)},
	})
	return nil
}

// BeginRecording moves to Recording and discards any unsaved blob and
// selection. There is no undo.
func (s *Session) BeginRecording() error {
	return s.mutate(func() error {
		if err := s.transitionLocked(StageRecording, "start_capture"); err != nil {
			return err
		}
		s.blob = nil
		s.duration = nil
		s.selection = nil
		s.lastError = ""
		return nil
	})
}

// AbortRecording returns a Recording session to Idle without a blob. Used
// when capture fails or the page is torn down mid-recording.
func (s *Session) AbortRecording(reason string) error {
	return s.mutate(func() error {
		if s.stage != StageRecording {
			return nil
		}
		if err := s.transitionLocked(StageIdle, reason); err != nil {
			return err
		}
		s.blob = nil
		s.duration = nil
		s.selection = nil
		return nil
	})
}

// CompleteRecording stores the captured blob and its wall-clock duration and
// moves to Captured. The selection is reset.
func (s *Session) CompleteRecording(blob *audio.Blob, durationSeconds float64) error {
	return s.mutate(func() error {
		if err := s.transitionLocked(StageCaptured, "stop_capture"); err != nil {
			return err
		}
		s.blob = blob
		d := durationSeconds
		s.duration = &d
		s.selection = nil
		return nil
	})
}

// LoadBlob replaces the blob with externally supplied audio (an uploaded
// file) and moves to Captured. Allowed from Idle and Captured.
func (s *Session) LoadBlob(blob *audio.Blob, durationSeconds float64) error {
	return s.mutate(func() error {
		switch s.stage {
		case StageIdle, StageCaptured:
		default:
			return fmt.Errorf("%w: load blob while %s", ErrInvalidTransition, s.stage)
		}
		s.stage = StageCaptured
		s.changedAt = time.Now()
		s.blob = blob
		d := durationSeconds
		s.duration = &d
		s.selection = nil
		return nil
	})
}

// SetSelection stores a region. It is only accepted while Captured with a
// blob; otherwise it returns ErrInvalidTransition.
func (s *Session) SetSelection(start, end float64) error {
	return s.mutate(func() error {
		if s.stage != StageCaptured || s.blob == nil {
			return fmt.Errorf("%w: selection requires a captured recording", ErrInvalidTransition)
		}
		s.selection = &Selection{Start: start, End: end}
		return nil
	})
}

// ClearSelection drops the region.
func (s *Session) ClearSelection() {
	_ = s.mutate(func() error {
		s.selection = nil
		return nil
	})
}

// SetTranscript replaces the transcript text. Transcript text survives new
// recordings.
func (s *Session) SetTranscript(text string) {
	_ = s.mutate(func() error {
		s.transcript = text
		return nil
	})
}

// SetPrompt installs the active prompt. A nil prompt means the backend had
// nothing to offer.
func (s *Session) SetPrompt(p *Prompt) {
	_ = s.mutate(func() error {
		s.prompt = p
		return nil
	})
}

// SetLastError records the last user-facing error message.
func (s *Session) SetLastError(msg string) {
	_ = s.mutate(func() error {
		s.lastError = msg
		return nil
	})
}

// CompleteSubmission clears the captured work after a successful upload and
// returns to Idle.
func (s *Session) CompleteSubmission() error {
	return s.mutate(func() error {
		if err := s.transitionLocked(StageIdle, "submit_ok"); err != nil {
			return err
		}
		s.blob = nil
		s.duration = nil
		s.selection = nil
		s.lastError = ""
		return nil
	})
}

// FailSubmission returns to Captured keeping blob, selection and transcript
// so the user can retry without re-recording.
func (s *Session) FailSubmission(msg string) error {
	return s.mutate(func() error {
		if err := s.transitionLocked(StageCaptured, "submit_failed"); err != nil {
			return err
		}
		s.lastError = msg
		return nil
	})
}

// HasTranscript reports whether the transcript has non-whitespace text.
func (s *Session) HasTranscript() bool {
	return strings.TrimSpace(s.Transcript()) != ""
}

// ChangedAt returns when the stage last changed.
func (s *Session) ChangedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changedAt
}

// mutate runs fn under the write lock and notifies observers on success.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshotLocked()
	observers := append([]func(Snapshot){}, s.onChange...)
	s.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
	return nil
}
