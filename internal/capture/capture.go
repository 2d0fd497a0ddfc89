// Package capture owns the microphone for the duration of one recording pass
// and turns the buffered chunks into the session's raw blob.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/diaglog"
	"github.com/tiroq/speechcollect/internal/session"
)

var (
	// ErrPermissionDenied means the user or host refused microphone access.
	// Recoverable by retrying.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrUnsupportedEnvironment means no capture capability exists.
	ErrUnsupportedEnvironment = errors.New("audio capture not supported in this environment")
)

// Microphone is the host capture port.
type Microphone interface {
	Name() string
	// Open acquires the device. It returns ErrPermissionDenied or
	// ErrUnsupportedEnvironment (possibly wrapped) when access is impossible.
	Open(ctx context.Context) (Stream, error)
}

// Stream is one acquired device producing encoded chunks.
type Stream interface {
	// Start begins buffering encoded audio.
	Start() error
	// Chunks delivers encoded data. It is closed once Stop has flushed the
	// final chunk or the stream failed.
	Chunks() <-chan []byte
	// MIMEType is the container of the concatenated chunks.
	MIMEType() string
	// Stop finalizes the recording.
	Stop() error
	// Release frees the device. Idempotent.
	Release()
}

// Failer is implemented by streams that can fail after Stop returned, e.g.
// when a remote agent drops the connection before flushing.
type Failer interface {
	Err() error
}

// Controller drives a Microphone on behalf of a session.
type Controller struct {
	mic         Microphone
	sess        *session.Session
	now         func() time.Time
	stopTimeout time.Duration

	logger   *diaglog.Logger
	loggerMu sync.RWMutex

	mu      sync.Mutex
	active  *pass
	opening bool
	cancel  context.CancelFunc // cancels a pending Open
	gen     int                // bumped by Close; a stale Open result is released
}

// pass is one recording: the stream and the buffer its collector fills.
// chunks is only read after done is closed.
type pass struct {
	stream  Stream
	started time.Time
	chunks  [][]byte
	done    chan struct{}
	abandon chan struct{}
	once    sync.Once
}

// drop stops the collector without waiting for the stream to close.
func (p *pass) drop() { p.once.Do(func() { close(p.abandon) }) }

// NewController binds a microphone to a session.
func NewController(mic Microphone, sess *session.Session) *Controller {
	return &Controller{
		mic:         mic,
		sess:        sess,
		now:         time.Now,
		stopTimeout: 5 * time.Second,
	}
}

// SetLogger injects a diaglog.Logger.
func (c *Controller) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

// SetStopTimeout bounds how long StopCapture waits for the final chunk.
func (c *Controller) SetStopTimeout(d time.Duration) {
	c.mu.Lock()
	c.stopTimeout = d
	c.mu.Unlock()
}

// SetClock overrides the wall clock used for durationSeconds.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Controller) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if entry.Component == "" {
		entry.Component = diaglog.ComponentCapture
	}
	entry.SessionID = c.sess.ID()
	l.Log(entry)
}

// StartCapture acquires the microphone and starts recording. Any previous
// blob and selection are discarded once the device is granted.
//
// The controller lock is not held while the device is being opened, so Close
// can interrupt a pending permission request.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.active != nil || c.opening {
		c.mu.Unlock()
		return fmt.Errorf("%w: already recording", session.ErrInvalidTransition)
	}
	if stage := c.sess.Stage(); !session.CanTransition(stage, session.StageRecording) {
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot record while %s", session.ErrInvalidTransition, stage)
	}
	if c.mic == nil {
		c.mu.Unlock()
		return ErrUnsupportedEnvironment
	}
	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.opening = true
	c.cancel = cancel
	gen := c.gen
	c.mu.Unlock()

	stream, err := c.mic.Open(openCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = false
	c.cancel = nil
	if c.gen != gen {
		if stream != nil {
			stream.Release()
		}
		return fmt.Errorf("open microphone: %w", context.Canceled)
	}
	if err != nil {
		c.log(diaglog.LogEntry{Event: diaglog.EventCaptureFailed, Reason: err.Error()})
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupportedEnvironment) {
			return err
		}
		return fmt.Errorf("open microphone %s: %w", c.mic.Name(), err)
	}
	if err := stream.Start(); err != nil {
		stream.Release()
		c.log(diaglog.LogEntry{Event: diaglog.EventCaptureFailed, Reason: err.Error()})
		return fmt.Errorf("start recording: %w", err)
	}
	if err := c.sess.BeginRecording(); err != nil {
		_ = stream.Stop()
		stream.Release()
		return err
	}

	p := &pass{
		stream:  stream,
		started: c.now(),
		done:    make(chan struct{}),
		abandon: make(chan struct{}),
	}
	c.active = p
	go p.collect(stream.Chunks())

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventCaptureStart,
		Payload: map[string]interface{}{"device": c.mic.Name(), "mime": stream.MIMEType()},
	})
	return nil
}

// collect buffers chunks until the stream closes its channel or the pass is
// abandoned. Chunks of an abandoned pass are thrown away with it.
func (p *pass) collect(ch <-chan []byte) {
	defer close(p.done)
	var buf [][]byte
	defer func() { p.chunks = buf }()
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			if len(chunk) > 0 {
				buf = append(buf, chunk)
			}
		case <-p.abandon:
			return
		}
	}
}

// StopCapture finalizes the recording into one blob, releases the device and
// moves the session to Captured. It is a no-op when not recording.
func (c *Controller) StopCapture() error {
	c.mu.Lock()
	p := c.active
	timeout := c.stopTimeout
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	stream := p.stream

	stopErr := stream.Stop()
	if stopErr == nil {
		select {
		case <-p.done:
			if f, ok := stream.(Failer); ok && f.Err() != nil {
				stopErr = f.Err()
			}
		case <-time.After(timeout):
			stopErr = errors.New("timed out waiting for final audio chunk")
		}
	}
	if stopErr != nil {
		p.drop()
	}
	stream.Release()
	c.log(diaglog.LogEntry{Event: diaglog.EventDeviceReleased, Reason: "stop"})

	c.mu.Lock()
	if c.active != p {
		// Close got here first.
		c.mu.Unlock()
		return nil
	}
	elapsed := c.now().Sub(p.started)
	c.active = nil
	c.mu.Unlock()

	if stopErr != nil {
		_ = c.sess.AbortRecording("capture_error")
		c.log(diaglog.LogEntry{Event: diaglog.EventCaptureFailed, Reason: stopErr.Error()})
		return fmt.Errorf("stop recording: %w", stopErr)
	}

	data := bytes.Join(p.chunks, nil)
	if data == nil {
		data = []byte{}
	}
	blob := &audio.Blob{Data: data, MIMEType: stream.MIMEType()}
	seconds := elapsed.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	if err := c.sess.CompleteRecording(blob, seconds); err != nil {
		return err
	}

	c.log(diaglog.LogEntry{
		Event: diaglog.EventCaptureStop,
		Payload: map[string]interface{}{
			"bytes":            len(data),
			"chunks":           len(p.chunks),
			"duration_seconds": seconds,
		},
	})
	return nil
}

// Close is the teardown path: it cancels a pending open, stops any active
// recording, releases the device and returns the session to Idle. It never
// waits on the microphone. Safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
	}
	p := c.active
	c.active = nil
	c.mu.Unlock()
	if p == nil {
		return nil
	}

	p.drop()
	_ = p.stream.Stop()
	p.stream.Release()
	c.log(diaglog.LogEntry{Event: diaglog.EventDeviceReleased, Reason: "teardown"})
	return c.sess.AbortRecording("teardown")
}

// IsRecording reports whether a stream is active.
func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Elapsed returns how long the current recording has been running.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0
	}
	return c.now().Sub(c.active.started)
}
