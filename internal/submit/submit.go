// Package submit validates a captured session, trims it when a region is
// selected and uploads it with the transcript and prompt id.
package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tiroq/speechcollect/internal/api"
	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/config"
	"github.com/tiroq/speechcollect/internal/diaglog"
	"github.com/tiroq/speechcollect/internal/fileutil"
	"github.com/tiroq/speechcollect/internal/session"
)

// GenericFailureMessage is shown when the backend gave no message of its own.
const GenericFailureMessage = "Submission failed. Please try again."

// Reasons carried by ValidationError, in the order they are checked.
const (
	ReasonSignIn        = "Please sign in to submit recordings."
	ReasonNoPrompt      = "No prompt loaded. Fetch a prompt before submitting."
	ReasonNoRecording   = "Record or load audio before submitting."
	ReasonNoTranscript  = "Type what you said before submitting."
	ReasonStopRecording = "Stop recording before submitting."
)

// ValidationError means a precondition failed. No request was sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// SubmissionError means the upload failed. Message is user-facing: the
// backend's own message when it sent one, GenericFailureMessage otherwise.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("%s: %v", e.Message, e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// Backend is the part of the API client the orchestrator needs.
type Backend interface {
	Authenticated(ctx context.Context) bool
	FetchPrompt(ctx context.Context) (*session.Prompt, error)
	UploadRecording(ctx context.Context, up api.Upload) (*api.UploadResult, error)
}

// Options tune submission behavior.
type Options struct {
	AllowAnonymous   bool
	TrimEnabled      bool
	TranscriptPolicy config.TranscriptPolicy
	Archive          *fileutil.Archive // nil disables the local copy
	Version          string
}

// Result describes a successful submission.
type Result struct {
	Filename       string
	MIMEType       string
	Bytes          int
	Trimmed        bool
	Warnings       []string
	BackendMessage string
	ArchivePath    string
	NextPrompt     *session.Prompt
}

// Orchestrator runs the submit procedure against one session.
type Orchestrator struct {
	backend Backend
	dec     audio.Decoder
	sess    *session.Session
	opts    Options
	now     func() time.Time

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New creates an Orchestrator. dec is used for trimming only.
func New(backend Backend, dec audio.Decoder, sess *session.Session, opts Options) *Orchestrator {
	if opts.TranscriptPolicy == "" {
		opts.TranscriptPolicy = config.TranscriptKeep
	}
	return &Orchestrator{backend: backend, dec: dec, sess: sess, opts: opts, now: time.Now}
}

// SetLogger injects a diaglog.Logger.
func (o *Orchestrator) SetLogger(l *diaglog.Logger) {
	o.loggerMu.Lock()
	o.logger = l
	o.loggerMu.Unlock()
}

// SetClock overrides the clock used for upload filenames.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

func (o *Orchestrator) log(entry diaglog.LogEntry) {
	o.loggerMu.RLock()
	l := o.logger
	o.loggerMu.RUnlock()
	if entry.Component == "" {
		entry.Component = diaglog.ComponentSubmit
	}
	entry.SessionID = o.sess.ID()
	l.Log(entry)
}

// Validate checks the preconditions in order and returns the first failure.
func (o *Orchestrator) Validate(ctx context.Context) error {
	snap := o.sess.Snapshot()
	switch {
	case !o.opts.AllowAnonymous && !o.backend.Authenticated(ctx):
		return &ValidationError{Reason: ReasonSignIn}
	case snap.Prompt == nil || snap.Prompt.ID == "":
		return &ValidationError{Reason: ReasonNoPrompt}
	case snap.Stage == session.StageRecording:
		return &ValidationError{Reason: ReasonStopRecording}
	case snap.Blob == nil:
		return &ValidationError{Reason: ReasonNoRecording}
	case !o.sess.HasTranscript():
		return &ValidationError{Reason: ReasonNoTranscript}
	}
	return nil
}

// Submit validates, optionally trims, and uploads the session's recording.
// On success the session returns to Idle and the next prompt is installed.
// On failure the session keeps its blob, selection and transcript.
func (o *Orchestrator) Submit(ctx context.Context) (*Result, error) {
	if err := o.Validate(ctx); err != nil {
		o.sess.SetLastError(err.Error())
		o.log(diaglog.LogEntry{Event: diaglog.EventSubmitRejected, Reason: err.Error()})
		return nil, err
	}

	snap := o.sess.Snapshot()
	if snap.Stage != session.StageCaptured {
		return nil, fmt.Errorf("%w: submit while %s", session.ErrInvalidTransition, snap.Stage)
	}

	res := &Result{}
	payload := snap.Blob

	sel := snap.Selection
	if o.opts.TrimEnabled && sel != nil && sel.Length() > audio.MinTrimSeconds {
		if err := o.sess.Transition(session.StageTrimming, "trim"); err != nil {
			return nil, err
		}
		payload, res.Trimmed, res.Warnings = o.trim(ctx, snap.Blob, *sel)
	}

	if err := o.sess.Transition(session.StageSubmitting, "upload"); err != nil {
		return nil, err
	}

	res.Filename = fileutil.RecordingFilename(o.now(), payload.MIMEType)
	res.MIMEType = payload.MIMEType
	res.Bytes = payload.Len()

	up, err := o.backend.UploadRecording(ctx, api.Upload{
		TextSpliceID: snap.Prompt.ID,
		SpokenText:   snap.Transcript,
		Filename:     res.Filename,
		MIMEType:     payload.MIMEType,
		Data:         payload.Data,
	})
	if err != nil {
		msg := failureMessage(err)
		_ = o.sess.FailSubmission(msg)
		o.log(diaglog.LogEntry{Event: diaglog.EventSubmitFailed, Reason: err.Error()})
		return nil, &SubmissionError{Message: msg, Err: err}
	}
	res.BackendMessage = up.Message

	o.log(diaglog.LogEntry{
		Event: diaglog.EventSubmitOK,
		Payload: map[string]interface{}{
			"prompt_id": snap.Prompt.ID,
			"filename":  res.Filename,
			"bytes":     res.Bytes,
			"trimmed":   res.Trimmed,
			"blake3":    fileutil.Checksum(payload.Data),
		},
	})

	if o.opts.Archive != nil {
		res.ArchivePath = o.archive(payload, snap, res)
	}

	if err := o.sess.CompleteSubmission(); err != nil {
		return res, err
	}
	if o.opts.TranscriptPolicy == config.TranscriptClear {
		o.sess.SetTranscript("")
	}

	next, err := o.backend.FetchPrompt(ctx)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not fetch next prompt: %v", err))
	}
	o.sess.SetPrompt(next)
	res.NextPrompt = next
	if next != nil && o.opts.TranscriptPolicy == config.TranscriptPrompt {
		o.sess.SetTranscript(next.Text)
	}
	return res, nil
}

// trim cuts blob to sel. Any failure falls back to the original blob with a
// warning; trimming never blocks submission.
func (o *Orchestrator) trim(ctx context.Context, blob *audio.Blob, sel session.Selection) (*audio.Blob, bool, []string) {
	out, trimmed, err := audio.Trim(ctx, o.dec, blob, sel.Start, sel.End)
	if err != nil {
		var de *audio.DecodeError
		warning := "could not trim the recording, submitting it untrimmed"
		if !errors.As(err, &de) {
			warning = "could not encode the trimmed recording, submitting it untrimmed"
		}
		o.log(diaglog.LogEntry{Component: diaglog.ComponentTrim, Event: diaglog.EventTrimFallback, Reason: err.Error()})
		return blob, false, []string{warning}
	}
	if !trimmed {
		o.log(diaglog.LogEntry{Component: diaglog.ComponentTrim, Event: diaglog.EventTrimSkipped, Reason: "degenerate selection"})
		return blob, false, nil
	}
	o.log(diaglog.LogEntry{
		Component: diaglog.ComponentTrim,
		Event:     diaglog.EventTrimApplied,
		Payload: map[string]interface{}{
			"start":     sel.Start,
			"end":       sel.End,
			"bytes_in":  blob.Len(),
			"bytes_out": out.Len(),
			"mime_type": out.MIMEType,
			"original":  blob.MIMEType,
		},
	})
	return out, true, nil
}

// archive stores the submitted bytes locally. Failures are logged only.
func (o *Orchestrator) archive(payload *audio.Blob, snap session.Snapshot, res *Result) string {
	meta := &fileutil.SubmissionMetadata{
		Version:        o.opts.Version,
		SessionID:      snap.ID,
		PromptID:       snap.Prompt.ID,
		PromptText:     snap.Prompt.Text,
		SpokenText:     snap.Transcript,
		Filename:       res.Filename,
		MIMEType:       payload.MIMEType,
		Trimmed:        res.Trimmed,
		Warnings:       res.Warnings,
		BackendMessage: res.BackendMessage,
		SubmittedAt:    o.now(),
	}
	if snap.DurationSeconds != nil {
		meta.DurationSeconds = *snap.DurationSeconds
	}
	if res.Trimmed && snap.Selection != nil {
		n := snap.Selection.Normalized()
		meta.Selection = &[2]float64{n.Start, n.End}
	}
	path, err := o.opts.Archive.Save(payload.Data, meta)
	if err != nil {
		o.log(diaglog.LogEntry{Event: diaglog.EventArchiveWriteFail, Reason: err.Error()})
		return ""
	}
	return path
}

func failureMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return GenericFailureMessage
}
