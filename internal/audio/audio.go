// Package audio holds the PCM model, the decode port, WAV encoding and the
// trim pipeline used before a recording is submitted.
package audio

import (
	"context"
	"fmt"
)

// Blob is encoded audio as captured or produced by Trim. The bytes are opaque
// to everything except a Decoder.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Extension returns the file extension matching the blob's MIME type.
func (b *Blob) Extension() string {
	if b == nil {
		return ""
	}
	return ExtensionForMIME(b.MIMEType)
}

// Len returns the number of encoded bytes, 0 for a nil blob.
func (b *Blob) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// PCM is decoded audio: one float32 slice per channel, samples in [-1, 1].
type PCM struct {
	SampleRate int
	Channels   [][]float32
}

// NumChannels returns the channel count.
func (p *PCM) NumChannels() int {
	if p == nil {
		return 0
	}
	return len(p.Channels)
}

// Frames returns the number of sample frames (samples per channel).
func (p *PCM) Frames() int {
	if p == nil || len(p.Channels) == 0 {
		return 0
	}
	return len(p.Channels[0])
}

// Duration returns the decoded length in seconds.
func (p *PCM) Duration() float64 {
	if p == nil || p.SampleRate <= 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// Slice returns the frames [start, end) of every channel. Bounds are clamped
// to the buffer. The returned PCM shares memory with p.
func (p *PCM) Slice(start, end int) *PCM {
	n := p.Frames()
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	out := &PCM{SampleRate: p.SampleRate, Channels: make([][]float32, len(p.Channels))}
	for i, ch := range p.Channels {
		out.Channels[i] = ch[start:end]
	}
	return out
}

// Decoder turns encoded bytes into PCM at the source sample rate.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*PCM, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, data []byte) (*PCM, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, data []byte) (*PCM, error) {
	return f(ctx, data)
}

// DecodeError reports bytes that could not be decoded as audio.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode audio: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }
