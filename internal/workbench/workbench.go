// Package workbench wires one session to the capture controller, waveform
// engine and submission orchestrator. The record page and the daemon both
// drive the pipeline through it.
package workbench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/capture"
	"github.com/tiroq/speechcollect/internal/diaglog"
	"github.com/tiroq/speechcollect/internal/ipc"
	"github.com/tiroq/speechcollect/internal/session"
	"github.com/tiroq/speechcollect/internal/submit"
	"github.com/tiroq/speechcollect/internal/waveform"
)

// Workbench owns the components of one recording page.
type Workbench struct {
	Session  *session.Session
	Capture  *capture.Controller
	Waveform *waveform.Engine
	Submit   *submit.Orchestrator

	backend submit.Backend

	mu         sync.Mutex
	lastAction string
	lastResult *submit.Result
}

// New assembles a workbench around sess.
func New(sess *session.Session, ctrl *capture.Controller, wf *waveform.Engine, orch *submit.Orchestrator, backend submit.Backend) *Workbench {
	return &Workbench{Session: sess, Capture: ctrl, Waveform: wf, Submit: orch, backend: backend}
}

// SetLogger injects l into every component.
func (w *Workbench) SetLogger(l *diaglog.Logger) {
	w.Session.SetLogger(l)
	w.Capture.SetLogger(l)
	w.Waveform.SetLogger(l)
	w.Submit.SetLogger(l)
}

func (w *Workbench) did(action string) {
	w.mu.Lock()
	w.lastAction = action
	w.mu.Unlock()
}

// LastAction names the last command that succeeded.
func (w *Workbench) LastAction() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastAction
}

// LastResult returns the outcome of the last successful submission.
func (w *Workbench) LastResult() *submit.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastResult
}

// StartRecording stops playback and starts a new capture.
func (w *Workbench) StartRecording(ctx context.Context) error {
	w.Waveform.Stop()
	if err := w.Capture.StartCapture(ctx); err != nil {
		w.Session.SetLastError(err.Error())
		return err
	}
	w.did("start")
	return nil
}

// StopRecording finishes the capture and decodes the blob for display.
func (w *Workbench) StopRecording(ctx context.Context) error {
	if err := w.Capture.StopCapture(); err != nil {
		w.Session.SetLastError(err.Error())
		return err
	}
	w.Waveform.LoadBlob(ctx, w.Session.Blob())
	w.did("stop")
	return nil
}

// LoadFile reads an audio file from disk and makes it the session's blob, as
// if it had just been recorded.
func (w *Workbench) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load audio: %w", err)
	}
	blob := &audio.Blob{Data: data, MIMEType: audio.MIMEForExtension(filepath.Ext(path))}
	if audio.IsWAV(data) {
		blob.MIMEType = audio.MIMETypeWAV
	}

	w.Waveform.Stop()
	w.Waveform.LoadBlob(ctx, blob)
	if err := w.Session.LoadBlob(blob, w.Waveform.Duration()); err != nil {
		w.Waveform.LoadBlob(ctx, w.Session.Blob())
		return err
	}
	w.did("load")
	return nil
}

// ToggleRecording starts or stops depending on the current stage.
func (w *Workbench) ToggleRecording(ctx context.Context) error {
	if w.Capture.IsRecording() {
		return w.StopRecording(ctx)
	}
	return w.StartRecording(ctx)
}

// Select turns region selection on and sets the region to [start, end].
func (w *Workbench) Select(start, end float64) error {
	w.Waveform.EnableRegionSelection(true)
	if !w.Waveform.SetRegion(start, end) {
		return fmt.Errorf("%w: nothing to select on", session.ErrInvalidTransition)
	}
	w.did("select")
	return nil
}

// ClearSelection removes the region.
func (w *Workbench) ClearSelection() {
	w.Waveform.ClearRegion()
	w.did("clear")
}

// Play plays the selection, or the whole recording when none is set.
func (w *Workbench) Play(ctx context.Context) error {
	if err := w.Waveform.PlaySelection(ctx); err != nil {
		return err
	}
	w.did("play")
	return nil
}

// Pause stops playback.
func (w *Workbench) Pause() {
	w.Waveform.Stop()
	w.did("pause")
}

// SetTranscript replaces the typed transcript.
func (w *Workbench) SetTranscript(text string) {
	w.Session.SetTranscript(text)
	w.did("transcript")
}

// NextPrompt fetches and installs a new prompt.
func (w *Workbench) NextPrompt(ctx context.Context) error {
	p, err := w.backend.FetchPrompt(ctx)
	if err != nil {
		w.Session.SetLastError(fmt.Sprintf("could not fetch a prompt: %v", err))
		return err
	}
	w.Session.SetPrompt(p)
	w.did("next")
	return nil
}

// SubmitRecording runs the orchestrator and clears the waveform on success.
func (w *Workbench) SubmitRecording(ctx context.Context) (*submit.Result, error) {
	w.Waveform.Stop()
	res, err := w.Submit.Submit(ctx)
	if err != nil {
		return nil, err
	}
	w.Waveform.LoadBlob(ctx, nil)
	w.mu.Lock()
	w.lastResult = res
	w.lastAction = "submit"
	w.mu.Unlock()
	return res, nil
}

// Execute runs one daemon command. CmdQuit is left to the caller.
func (w *Workbench) Execute(ctx context.Context, cmd ipc.Command) error {
	switch cmd.Name {
	case ipc.CmdStart:
		return w.StartRecording(ctx)
	case ipc.CmdStop:
		return w.StopRecording(ctx)
	case ipc.CmdLoad:
		return w.LoadFile(ctx, cmd.Text())
	case ipc.CmdSelect:
		start, end, err := cmd.Range()
		if err != nil {
			return err
		}
		return w.Select(start, end)
	case ipc.CmdClear:
		w.ClearSelection()
	case ipc.CmdPlay:
		return w.Play(ctx)
	case ipc.CmdPause:
		w.Pause()
	case ipc.CmdTranscript:
		w.SetTranscript(cmd.Text())
	case ipc.CmdSubmit:
		_, err := w.SubmitRecording(ctx)
		return err
	case ipc.CmdNext:
		return w.NextPrompt(ctx)
	case ipc.CmdQuit:
	default:
		return fmt.Errorf("%w: %s", ipc.ErrUnknownCommand, cmd.Name)
	}
	return nil
}

// Status renders the current state for status.json.
func (w *Workbench) Status(backend string) *ipc.StatusSnapshot {
	st := ipc.StatusFrom(w.Session.Snapshot())
	st.Playing = w.Waveform.IsPlaying()
	st.LastAction = w.LastAction()
	st.Backend = backend
	return st
}

// Close stops playback and releases the microphone.
func (w *Workbench) Close() error {
	w.Waveform.Stop()
	return w.Capture.Close()
}
