//go:build portaudio

package pamic

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/tiroq/speechcollect/internal/audio"
)

// Player plays decoded audio on the default output device.
type Player struct{}

// Play implements audio.Player. Frames [startFrame, endFrame) are written in
// buffers of framesPerBuffer; Pause stops after the current buffer.
func (Player) Play(ctx context.Context, pcm *audio.PCM, startFrame, endFrame int) (audio.Playback, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	channels := pcm.NumChannels()
	out := make([]float32, framesPerBuffer*channels)
	st, err := portaudio.OpenDefaultStream(0, channels, float64(pcm.SampleRate), framesPerBuffer, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	pb := &playback{pause: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer func() {
			_ = st.Stop()
			_ = st.Close()
			_ = portaudio.Terminate()
			close(pb.done)
		}()
		for f := startFrame; f < endFrame; f += framesPerBuffer {
			select {
			case <-pb.pause:
				return
			case <-ctx.Done():
				return
			default:
			}
			for i := 0; i < framesPerBuffer; i++ {
				for c := 0; c < channels; c++ {
					v := float32(0)
					if f+i < endFrame {
						v = pcm.Channels[c][f+i]
					}
					out[i*channels+c] = v
				}
			}
			if err := st.Write(); err != nil {
				return
			}
		}
	}()
	return pb, nil
}

type playback struct {
	once  sync.Once
	pause chan struct{}
	done  chan struct{}
}

func (p *playback) Pause() { p.once.Do(func() { close(p.pause) }) }

func (p *playback) Done() <-chan struct{} { return p.done }
