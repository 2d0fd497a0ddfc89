package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth         = 16
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	wavHeaderBytes      = 44
)

// FloatToPCM16 converts one float sample to a signed 16-bit value. The sample
// is clamped to [-1, 1]; negative values scale by 32768, the rest by 32767,
// and the product is truncated.
func FloatToPCM16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// EncodeWAV writes p as a canonical 16-bit PCM WAV stream: a 44-byte header
// followed by little-endian samples interleaved frame by frame.
func EncodeWAV(p *PCM) ([]byte, error) {
	if p == nil || p.NumChannels() == 0 {
		return nil, errors.New("encode wav: no channels")
	}
	if p.SampleRate <= 0 {
		return nil, fmt.Errorf("encode wav: invalid sample rate %d", p.SampleRate)
	}

	channels := p.NumChannels()
	frames := p.Frames()
	data := make([]int, frames*channels)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			data[f*channels+c] = int(FloatToPCM16(p.Channels[c][f]))
		}
	}

	ws := &memWriteSeeker{buf: make([]byte, 0, wavHeaderBytes+len(data)*2)}
	enc := wav.NewEncoder(ws, p.SampleRate, wavBitDepth, channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  p.SampleRate,
		},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return ws.buf, nil
}

// WAVDecoder decodes RIFF/WAVE PCM data with go-audio.
type WAVDecoder struct{}

// Decode implements Decoder.
func (WAVDecoder) Decode(_ context.Context, data []byte) (*PCM, error) {
	if !IsWAV(data) {
		return nil, errors.New("not a RIFF/WAVE stream")
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav stream")
	}
	if format := wavFormat(data, d.WavAudioFormat); format != wavFormatPCM {
		return nil, fmt.Errorf("unsupported wav format 0x%04x, only integer PCM is decoded", format)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return nil, errors.New("wav stream has no usable format")
	}

	channels := buf.Format.NumChannels
	bitDepth := int(d.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	scale := float32(int64(1) << uint(bitDepth-1))

	frames := len(buf.Data) / channels
	out := &PCM{SampleRate: buf.Format.SampleRate, Channels: make([][]float32, channels)}
	for c := range out.Channels {
		out.Channels[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			s := buf.Data[f*channels+c]
			if bitDepth == 8 {
				// 8-bit WAV is unsigned.
				s -= 128
			}
			out.Channels[c][f] = float32(s) / scale
		}
	}
	return out, nil
}

// wavFormat returns the effective sample format. For WAVE_FORMAT_EXTENSIBLE
// it is the first two bytes of the SubFormat GUID in the fmt chunk.
func wavFormat(data []byte, declared uint16) uint16 {
	if declared != wavFormatExtensible {
		return declared
	}
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if id == "fmt " {
			if size < 40 || body+26 > len(data) {
				return declared
			}
			return binary.LittleEndian.Uint16(data[body+24 : body+26])
		}
		off = body + size + size%2
	}
	return declared
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// memWriteSeeker is the in-memory io.WriteSeeker the wav encoder needs to
// patch chunk sizes after the samples are written.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, end*2)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("seek: negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
