package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// MinTrimSeconds is the selection length at or below which Trim treats the
// request as "no trim" and returns the input untouched.
const MinTrimSeconds = 0.01

// Trim cuts blob down to the interval [start, end] seconds and re-encodes it
// as 16-bit WAV. The bounds may arrive in either order and are clamped to the
// decoded duration. The second return value reports whether a new blob was
// produced; when it is false the original blob is returned as is.
//
// A blob that cannot be decoded yields a *DecodeError and no blob; callers
// are expected to fall back to the original.
func Trim(ctx context.Context, dec Decoder, blob *Blob, start, end float64) (*Blob, bool, error) {
	if blob == nil || len(blob.Data) == 0 {
		return nil, false, &DecodeError{Err: errors.New("empty blob")}
	}
	if dec == nil {
		return nil, false, &DecodeError{Err: errors.New("no decoder")}
	}

	pcm, err := dec.Decode(ctx, blob.Data)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, false, err
		}
		return nil, false, &DecodeError{Err: err}
	}
	if pcm.NumChannels() == 0 || pcm.SampleRate <= 0 {
		return nil, false, &DecodeError{Err: errors.New("decoded audio has no channels")}
	}

	s, e := ClampSelection(start, end, pcm.Duration())
	if e-s <= MinTrimSeconds {
		return blob, false, nil
	}

	startFrame, endFrame := FrameRange(s, e, pcm.SampleRate, pcm.Frames())
	if endFrame <= startFrame {
		return blob, false, nil
	}

	data, err := EncodeWAV(pcm.Slice(startFrame, endFrame))
	if err != nil {
		return nil, false, fmt.Errorf("trim: %w", err)
	}
	return &Blob{Data: data, MIMEType: MIMETypeWAV}, true, nil
}

// ClampSelection orders start/end and clamps both into [0, duration].
// NaN bounds collapse to 0.
func ClampSelection(start, end, duration float64) (float64, float64) {
	if start > end {
		start, end = end, start
	}
	return clamp(start, duration), clamp(end, duration)
}

// FrameRange converts a clamped selection in seconds to the half-open frame
// range [startFrame, endFrame) using floor(t * sampleRate).
func FrameRange(start, end float64, sampleRate, frames int) (int, int) {
	sf := int(math.Floor(start * float64(sampleRate)))
	ef := int(math.Floor(end * float64(sampleRate)))
	if sf < 0 {
		sf = 0
	}
	if ef > frames {
		ef = frames
	}
	if sf > ef {
		sf = ef
	}
	return sf, ef
}

func clamp(v, max float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
