// Package waveform decodes the session's blob for display, keeps the single
// user-selected region and plays the audio back, bounded to the region when
// one is active.
package waveform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/diaglog"
	"github.com/tiroq/speechcollect/internal/session"
)

// ErrNothingLoaded is returned by playback calls when no audio is decoded.
var ErrNothingLoaded = errors.New("no audio loaded")

// Region is a selected interval in seconds as reported by the drag gesture.
// Start and End are not ordered.
type Region struct {
	Start float64
	End   float64
}

// Peak is the sample range covered by one display column.
type Peak struct {
	Min float32
	Max float32
}

// Engine is a read-only observer of a session's blob.
type Engine struct {
	dec    audio.Decoder
	player audio.Player
	sess   *session.Session

	logger   *diaglog.Logger
	loggerMu sync.RWMutex

	mu        sync.Mutex
	pcm       *audio.PCM
	loaded    *audio.Blob
	decodeErr error
	selecting bool
	region    *Region
	playing   bool
	playback  audio.Playback
	onRegion  []func(Region)
	onPlaying []func(bool)
}

// New creates an engine bound to sess. The engine clears its region whenever
// the session's blob is replaced.
func New(dec audio.Decoder, player audio.Player, sess *session.Session) *Engine {
	if player == nil {
		player = audio.NullPlayer{}
	}
	e := &Engine{dec: dec, player: player, sess: sess}
	sess.OnChange(e.observe)
	return e
}

// SetLogger injects a diaglog.Logger.
func (e *Engine) SetLogger(l *diaglog.Logger) {
	e.loggerMu.Lock()
	e.logger = l
	e.loggerMu.Unlock()
}

func (e *Engine) log(entry diaglog.LogEntry) {
	e.loggerMu.RLock()
	l := e.logger
	e.loggerMu.RUnlock()
	entry.Component = diaglog.ComponentWaveform
	entry.SessionID = e.sess.ID()
	l.Log(entry)
}

// observe clears the display and the region once the session no longer holds
// the blob they were drawn from.
func (e *Engine) observe(snap session.Snapshot) {
	e.mu.Lock()
	if e.loaded != nil && snap.Blob != e.loaded {
		e.region = nil
		e.pcm = nil
		e.loaded = nil
	}
	e.mu.Unlock()
}

// LoadBlob decodes blob for display. A nil blob clears the display. Decode
// failures are logged and leave the display empty; they are not fatal.
func (e *Engine) LoadBlob(ctx context.Context, blob *audio.Blob) {
	e.stopPlayback()

	e.mu.Lock()
	e.pcm = nil
	e.loaded = blob
	e.region = nil
	e.decodeErr = nil
	e.mu.Unlock()

	if blob == nil || e.dec == nil {
		return
	}

	pcm, err := e.dec.Decode(ctx, blob.Data)
	if err != nil {
		e.log(diaglog.LogEntry{Event: diaglog.EventDecodeFailed, Reason: err.Error()})
		e.mu.Lock()
		e.decodeErr = &audio.DecodeError{Err: err}
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	if e.loaded == blob {
		e.pcm = pcm
	}
	e.mu.Unlock()
}

// DecodeErr returns the error from the last LoadBlob, if any.
func (e *Engine) DecodeErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decodeErr
}

// Loaded reports whether decoded audio is available.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pcm != nil
}

// Duration returns the decoded duration in seconds, 0 when nothing is loaded.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pcm.Duration()
}

// EnableRegionSelection turns the drag-to-select mode on or off. Turning it
// off clears the region and the session selection.
func (e *Engine) EnableRegionSelection(enabled bool) {
	e.mu.Lock()
	e.selecting = enabled
	if !enabled {
		e.region = nil
	}
	e.mu.Unlock()
	if !enabled {
		e.sess.ClearSelection()
	}
}

// SelectionEnabled reports whether region selection mode is on.
func (e *Engine) SelectionEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selecting
}

// OnRegionChange registers fn to be called when the region is created or
// resized.
func (e *Engine) OnRegionChange(fn func(Region)) {
	e.mu.Lock()
	e.onRegion = append(e.onRegion, fn)
	e.mu.Unlock()
}

// OnPlayingChange registers fn to be called on play, pause and finish.
func (e *Engine) OnPlayingChange(fn func(bool)) {
	e.mu.Lock()
	e.onPlaying = append(e.onPlaying, fn)
	e.mu.Unlock()
}

// SetRegion is the drag gesture: it creates the region, replacing any
// existing one, and pushes the unordered bounds into the session selection.
// It returns false when selection mode is off or nothing is loaded.
func (e *Engine) SetRegion(start, end float64) bool {
	e.mu.Lock()
	if !e.selecting || e.pcm == nil || e.loaded == nil || e.sess.Blob() != e.loaded {
		e.mu.Unlock()
		return false
	}
	r := Region{Start: start, End: end}
	e.region = &r
	observers := append([]func(Region){}, e.onRegion...)
	e.mu.Unlock()

	if err := e.sess.SetSelection(start, end); err != nil {
		e.mu.Lock()
		e.region = nil
		e.mu.Unlock()
		return false
	}
	e.log(diaglog.LogEntry{
		Event:   diaglog.EventRegionChange,
		Payload: map[string]interface{}{"start": start, "end": end},
	})
	for _, fn := range observers {
		fn(r)
	}
	return true
}

// Region returns the active region, nil when there is none.
func (e *Engine) Region() *Region {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.region == nil {
		return nil
	}
	r := *e.region
	return &r
}

// ClearRegion removes the region and the session selection.
func (e *Engine) ClearRegion() {
	e.mu.Lock()
	e.region = nil
	e.mu.Unlock()
	e.sess.ClearSelection()
}

// IsPlaying reports whether playback is running.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// PlaySelection plays the region when selection mode is on and a region
// exists, stopping at its end. Otherwise it behaves like PlayFull.
func (e *Engine) PlaySelection(ctx context.Context) error {
	e.mu.Lock()
	pcm := e.pcm
	region := e.region
	selecting := e.selecting
	e.mu.Unlock()

	if pcm == nil {
		return ErrNothingLoaded
	}
	if !selecting || region == nil {
		return e.PlayFull(ctx)
	}

	e.stopPlayback()
	s, end := audio.ClampSelection(region.Start, region.End, pcm.Duration())
	sf, ef := audio.FrameRange(s, end, pcm.SampleRate, pcm.Frames())
	return e.start(ctx, pcm, sf, ef)
}

// PlayFull toggles play/pause of the whole decoded buffer.
func (e *Engine) PlayFull(ctx context.Context) error {
	e.mu.Lock()
	pcm := e.pcm
	playing := e.playing
	e.mu.Unlock()

	if pcm == nil {
		return ErrNothingLoaded
	}
	if playing {
		e.stopPlayback()
		return nil
	}
	return e.start(ctx, pcm, 0, pcm.Frames())
}

func (e *Engine) start(ctx context.Context, pcm *audio.PCM, startFrame, endFrame int) error {
	pb, err := e.player.Play(ctx, pcm, startFrame, endFrame)
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}

	e.mu.Lock()
	e.playback = pb
	e.playing = true
	observers := append([]func(bool){}, e.onPlaying...)
	e.mu.Unlock()
	for _, fn := range observers {
		fn(true)
	}

	go func() {
		<-pb.Done()
		e.finished(pb)
	}()
	return nil
}

// finished flips the playing flag if pb is still the current playback.
func (e *Engine) finished(pb audio.Playback) {
	e.mu.Lock()
	if e.playback != pb {
		e.mu.Unlock()
		return
	}
	e.playback = nil
	e.playing = false
	observers := append([]func(bool){}, e.onPlaying...)
	e.mu.Unlock()
	for _, fn := range observers {
		fn(false)
	}
}

func (e *Engine) stopPlayback() {
	e.mu.Lock()
	pb := e.playback
	e.mu.Unlock()
	if pb == nil {
		return
	}
	pb.Pause()
	<-pb.Done()
	e.finished(pb)
}

// Stop halts playback, if any.
func (e *Engine) Stop() {
	e.stopPlayback()
}
