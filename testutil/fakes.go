package testutil

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/capture"
)

// SinePCM returns seconds of a 440 Hz tone at half amplitude on every channel.
func SinePCM(sampleRate, channels int, seconds float64) *audio.PCM {
	n := int(float64(sampleRate) * seconds)
	p := &audio.PCM{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for c := range p.Channels {
		p.Channels[c] = make([]float32, n)
		for i := range p.Channels[c] {
			p.Channels[c][i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		}
	}
	return p
}

// SineWAV encodes SinePCM as a WAV file.
func SineWAV(t *testing.T, sampleRate, channels int, seconds float64) []byte {
	t.Helper()
	data, err := audio.EncodeWAV(SinePCM(sampleRate, channels, seconds))
	if err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	return data
}

// ── Microphone ───────────────────────────────────────────────────────────────

// FakeMicrophone is a capture.Microphone that replays canned chunks.
type FakeMicrophone struct {
	MIME     string
	Chunks   [][]byte
	OpenErr  error
	StartErr error
	StopErr  error
	// HoldFinal keeps Chunks() open after Stop, simulating an agent that
	// never flushes.
	HoldFinal bool
	// Block, when set, makes Open wait until it is closed or ctx is done,
	// like a pending permission prompt.
	Block chan struct{}
	// IgnoreCancel makes a blocked Open wait for Block even after ctx is
	// done, like a device API that cannot be interrupted.
	IgnoreCancel bool

	mu      sync.Mutex
	waiting int
	opened  int
	streams []*FakeStream
}

// Name implements capture.Microphone.
func (m *FakeMicrophone) Name() string { return "fake" }

// Open implements capture.Microphone.
func (m *FakeMicrophone) Open(ctx context.Context) (capture.Stream, error) {
	if m.Block != nil {
		m.mu.Lock()
		m.waiting++
		m.mu.Unlock()
		done := ctx.Done()
		if m.IgnoreCancel {
			done = nil
		}
		select {
		case <-m.Block:
		case <-done:
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	mime := m.MIME
	if mime == "" {
		mime = "audio/webm"
	}
	s := &FakeStream{
		mime:      mime,
		chunks:    make(chan []byte, len(m.Chunks)+8),
		data:      m.Chunks,
		startErr:  m.StartErr,
		stopErr:   m.StopErr,
		holdFinal: m.HoldFinal,
	}
	m.streams = append(m.streams, s)
	return s, nil
}

// Waiting returns how many Open calls reached the Block wait.
func (m *FakeMicrophone) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiting
}

// Opened returns how many times Open got past Block.
func (m *FakeMicrophone) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// LastStream returns the most recently opened stream.
func (m *FakeMicrophone) LastStream() *FakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// FakeStream is the capture.Stream handed out by FakeMicrophone.
type FakeStream struct {
	mime      string
	chunks    chan []byte
	data      [][]byte
	startErr  error
	stopErr   error
	holdFinal bool

	mu       sync.Mutex
	started  bool
	stopped  bool
	released int
}

// Start implements capture.Stream. All canned chunks are queued at once.
func (s *FakeStream) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	for _, c := range s.data {
		s.chunks <- c
	}
	return nil
}

// Push delivers a chunk after Start, e.g. one arriving late from a slow
// device. It must not be called after the stream closed its channel.
func (s *FakeStream) Push(chunk []byte) { s.chunks <- chunk }

// Chunks implements capture.Stream.
func (s *FakeStream) Chunks() <-chan []byte { return s.chunks }

// MIMEType implements capture.Stream.
func (s *FakeStream) MIMEType() string { return s.mime }

// Stop implements capture.Stream.
func (s *FakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.stopErr != nil {
		return s.stopErr
	}
	if !s.holdFinal {
		close(s.chunks)
	}
	return nil
}

// Release implements capture.Stream.
func (s *FakeStream) Release() {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
}

// Released reports how many times Release was called.
func (s *FakeStream) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Started reports whether Start succeeded.
func (s *FakeStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// ── Decoder ──────────────────────────────────────────────────────────────────

// ErrFakeDecode is returned by FailingDecoder.
var ErrFakeDecode = errors.New("fake: cannot decode")

// FailingDecoder rejects everything.
var FailingDecoder = audio.DecoderFunc(func(context.Context, []byte) (*audio.PCM, error) {
	return nil, ErrFakeDecode
})

// ── Player ───────────────────────────────────────────────────────────────────

// FakePlayer records Play calls. Playbacks stay running until Finish or Pause.
type FakePlayer struct {
	PlayErr error

	mu    sync.Mutex
	calls []PlayCall
	last  *FakePlayback
}

// PlayCall is one recorded Play invocation.
type PlayCall struct {
	StartFrame int
	EndFrame   int
}

// Play implements audio.Player.
func (p *FakePlayer) Play(ctx context.Context, pcm *audio.PCM, startFrame, endFrame int) (audio.Playback, error) {
	if p.PlayErr != nil {
		return nil, p.PlayErr
	}
	pb := &FakePlayback{done: make(chan struct{})}
	p.mu.Lock()
	p.calls = append(p.calls, PlayCall{StartFrame: startFrame, EndFrame: endFrame})
	p.last = pb
	p.mu.Unlock()
	return pb, nil
}

// Calls returns the recorded Play calls.
func (p *FakePlayer) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayCall(nil), p.calls...)
}

// Last returns the most recent playback.
func (p *FakePlayer) Last() *FakePlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// FakePlayback is a playback driven by the test.
type FakePlayback struct {
	once   sync.Once
	done   chan struct{}
	paused bool
	mu     sync.Mutex
}

// Pause implements audio.Playback.
func (pb *FakePlayback) Pause() {
	pb.mu.Lock()
	pb.paused = true
	pb.mu.Unlock()
	pb.Finish()
}

// Finish ends playback as if the audio ran out.
func (pb *FakePlayback) Finish() { pb.once.Do(func() { close(pb.done) }) }

// Done implements audio.Playback.
func (pb *FakePlayback) Done() <-chan struct{} { return pb.done }

// Paused reports whether Pause was called.
func (pb *FakePlayback) Paused() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.paused
}
