package audio

import "context"

// Player is the host playback port.
type Player interface {
	// Play starts playing frames [startFrame, endFrame) of p. The returned
	// Playback finishes by itself at endFrame.
	Play(ctx context.Context, p *PCM, startFrame, endFrame int) (Playback, error)
}

// Playback is one running Play call.
type Playback interface {
	// Pause stops output; the playback is finished afterwards.
	Pause()
	// Done is closed when playback ends for any reason.
	Done() <-chan struct{}
}

// NullPlayer accepts every Play call and finishes immediately. It stands in
// when the host has no audio output.
type NullPlayer struct{}

// Play implements Player.
func (NullPlayer) Play(context.Context, *PCM, int, int) (Playback, error) {
	done := make(chan struct{})
	close(done)
	return nullPlayback{done: done}, nil
}

type nullPlayback struct{ done chan struct{} }

func (nullPlayback) Pause()                  {}
func (p nullPlayback) Done() <-chan struct{} { return p.done }
