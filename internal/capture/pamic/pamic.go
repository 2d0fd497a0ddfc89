//go:build portaudio

// Package pamic captures from and plays to the default PortAudio devices.
// Build with -tags portaudio; the PortAudio C library must be installed.
package pamic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/capture"
)

const framesPerBuffer = 1024

// Mic records 16-bit PCM from the default input device. Chunks are framed as
// a single WAV file delivered on Stop.
type Mic struct {
	SampleRate int
	Channels   int
}

// New returns a Mic with the given format.
func New(sampleRate, channels int) *Mic {
	return &Mic{SampleRate: sampleRate, Channels: channels}
}

// Name implements capture.Microphone.
func (m *Mic) Name() string { return "portaudio:default" }

// Open implements capture.Microphone.
func (m *Mic) Open(ctx context.Context) (capture.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", capture.ErrUnsupportedEnvironment, err)
	}
	in := make([]int16, framesPerBuffer*m.Channels)
	st, err := portaudio.OpenDefaultStream(m.Channels, 0, float64(m.SampleRate), framesPerBuffer, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, mapOpenError(err)
	}
	return &stream{
		mic:    m,
		st:     st,
		in:     in,
		chunks: make(chan []byte, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// mapOpenError sorts PortAudio failures into the capture sentinels. Hosts
// that refuse microphone access surface it as an unanticipated host error.
func mapOpenError(err error) error {
	switch {
	case errors.Is(err, portaudio.DeviceUnavailable), errors.Is(err, portaudio.InvalidDevice):
		return fmt.Errorf("%w: %v", capture.ErrUnsupportedEnvironment, err)
	case strings.Contains(strings.ToLower(err.Error()), "permission"):
		return fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("open input stream: %w", err)
	}
}

type stream struct {
	mic *Mic
	st  *portaudio.Stream
	in  []int16

	chunks chan []byte
	quit   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	frames  []int16
	readErr error

	stopOnce    sync.Once
	releaseOnce sync.Once
}

func (s *stream) Start() error {
	if err := s.st.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	go s.readLoop()
	return nil
}

func (s *stream) readLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		if err := s.st.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		s.frames = append(s.frames, s.in...)
		s.mu.Unlock()
	}
}

func (s *stream) Chunks() <-chan []byte { return s.chunks }

func (s *stream) MIMEType() string { return audio.MIMETypeWAV }

// Stop ends the read loop and emits the whole take as one WAV chunk.
func (s *stream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)
		<-s.done
		_ = s.st.Stop()
		defer close(s.chunks)

		s.mu.Lock()
		frames, readErr := s.frames, s.readErr
		s.frames = nil
		s.mu.Unlock()
		if readErr != nil {
			err = fmt.Errorf("read input stream: %w", readErr)
			return
		}

		data, encErr := audio.EncodeWAV(deinterleave(frames, s.mic.Channels, s.mic.SampleRate))
		if encErr != nil {
			err = encErr
			return
		}
		s.chunks <- data
	})
	return err
}

func (s *stream) Release() {
	s.releaseOnce.Do(func() {
		select {
		case <-s.quit:
		default:
			close(s.quit)
		}
		_ = s.st.Close()
		_ = portaudio.Terminate()
	})
}

func deinterleave(samples []int16, channels, rate int) *audio.PCM {
	n := len(samples) / channels
	p := &audio.PCM{SampleRate: rate, Channels: make([][]float32, channels)}
	for c := range p.Channels {
		p.Channels[c] = make([]float32, n)
	}
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			p.Channels[c][i] = float32(samples[i*channels+c]) / 32768
		}
	}
	return p
}
