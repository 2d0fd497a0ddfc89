package audio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
)

func wavBlob(t *testing.T, p *PCM) *Blob {
	t.Helper()
	data, err := EncodeWAV(p)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return &Blob{Data: data, MIMEType: "audio/wav"}
}

func TestTrim_FrameCount(t *testing.T) {
	const rate = 16000
	blob := wavBlob(t, sinePCM(rate, 2, 3.0))

	tests := []struct {
		start, end float64
	}{
		{1.0, 2.0},
		{0.0, 0.5},
		{0.123, 2.987},
		{2.5, 3.0},
		{0.02, 0.0333},
	}
	for _, tt := range tests {
		out, trimmed, err := Trim(context.Background(), WAVDecoder{}, blob, tt.start, tt.end)
		if err != nil {
			t.Fatalf("Trim(%v, %v): %v", tt.start, tt.end, err)
		}
		if !trimmed {
			t.Fatalf("Trim(%v, %v) not trimmed", tt.start, tt.end)
		}
		if out.MIMEType != MIMETypeWAV || out.Extension() != "wav" {
			t.Errorf("mime = %q ext = %q", out.MIMEType, out.Extension())
		}
		pcm, err := WAVDecoder{}.Decode(context.Background(), out.Data)
		if err != nil {
			t.Fatalf("decode trimmed: %v", err)
		}
		want := int(math.Round((tt.end - tt.start) * rate))
		if d := pcm.Frames() - want; d < -1 || d > 1 {
			t.Errorf("Trim(%v, %v) frames = %d, want %d±1", tt.start, tt.end, pcm.Frames(), want)
		}
		if pcm.NumChannels() != 2 || pcm.SampleRate != rate {
			t.Errorf("format = %d ch @ %d Hz, want 2 ch @ %d Hz", pcm.NumChannels(), pcm.SampleRate, rate)
		}
	}
}

func TestTrim_ReversedBoundsNormalized(t *testing.T) {
	blob := wavBlob(t, sinePCM(8000, 1, 2.0))
	a, _, err := Trim(context.Background(), WAVDecoder{}, blob, 0.5, 1.5)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	b, _, err := Trim(context.Background(), WAVDecoder{}, blob, 1.5, 0.5)
	if err != nil {
		t.Fatalf("Trim reversed: %v", err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Error("reversed bounds produced different output")
	}
}

func TestTrim_ClampsToDuration(t *testing.T) {
	const rate = 8000
	blob := wavBlob(t, sinePCM(rate, 1, 1.0))
	out, trimmed, err := Trim(context.Background(), WAVDecoder{}, blob, -3, 10)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if !trimmed {
		t.Fatal("expected trimmed output")
	}
	pcm, err := WAVDecoder{}.Decode(context.Background(), out.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pcm.Frames() != rate {
		t.Errorf("frames = %d, want %d", pcm.Frames(), rate)
	}
}

func TestTrim_DegenerateSelectionIsIdentity(t *testing.T) {
	blob := wavBlob(t, sinePCM(8000, 1, 1.0))
	cases := [][2]float64{
		{0.5, 0.5},
		{0.5, 0.505},
		{0.505, 0.5},
		{5, 6}, // both past the end clamp to the same point
	}
	for _, c := range cases {
		out, trimmed, err := Trim(context.Background(), WAVDecoder{}, blob, c[0], c[1])
		if err != nil {
			t.Fatalf("Trim(%v): %v", c, err)
		}
		if trimmed {
			t.Errorf("Trim(%v) reported trimmed", c)
		}
		if out != blob {
			t.Errorf("Trim(%v) did not return the original blob", c)
		}
	}
}

func TestTrim_DecodeError(t *testing.T) {
	blob := &Blob{Data: []byte("definitely not audio"), MIMEType: "audio/webm"}
	out, trimmed, err := Trim(context.Background(), WAVDecoder{}, blob, 0, 1)
	if out != nil || trimmed {
		t.Errorf("expected no output, got %v trimmed=%v", out, trimmed)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}

	if _, _, err := Trim(context.Background(), WAVDecoder{}, nil, 0, 1); !errors.As(err, &de) {
		t.Errorf("nil blob: err = %v, want *DecodeError", err)
	}
}

func TestTrim_PreservesSamples(t *testing.T) {
	const rate = 1000
	p := &PCM{SampleRate: rate, Channels: [][]float32{make([]float32, rate)}}
	for i := range p.Channels[0] {
		p.Channels[0][i] = float32(i%100) / 100
	}
	blob := wavBlob(t, p)

	out, _, err := Trim(context.Background(), WAVDecoder{}, blob, 0.25, 0.5)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	got, err := WAVDecoder{}.Decode(context.Background(), out.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Frames() != 250 {
		t.Fatalf("frames = %d, want 250", got.Frames())
	}
	// first frame of the slice is source frame 250 → 50/100
	if d := math.Abs(float64(got.Channels[0][0]) - 0.5); d > 0.001 {
		t.Errorf("first sample = %v, want ~0.5", got.Channels[0][0])
	}
}

func TestClampSelection(t *testing.T) {
	tests := []struct {
		start, end, dur float64
		ws, we          float64
	}{
		{1, 2, 3, 1, 2},
		{2, 1, 3, 1, 2},
		{-1, 5, 3, 0, 3},
		{math.NaN(), 1, 3, 0, 1},
	}
	for _, tt := range tests {
		s, e := ClampSelection(tt.start, tt.end, tt.dur)
		if s != tt.ws || e != tt.we {
			t.Errorf("ClampSelection(%v, %v, %v) = (%v, %v), want (%v, %v)", tt.start, tt.end, tt.dur, s, e, tt.ws, tt.we)
		}
	}
}

func TestExtensionForMIME(t *testing.T) {
	tests := map[string]string{
		"audio/webm;codecs=opus": "webm",
		"audio/ogg":              "ogg",
		"audio/wav":              "wav",
		"AUDIO/X-WAV":            "wav",
		"audio/mp4":              "m4a",
		"audio/mpeg":             "mp3",
		"":                       "bin",
	}
	for in, want := range tests {
		if got := ExtensionForMIME(in); got != want {
			t.Errorf("ExtensionForMIME(%q) = %q, want %q", in, got, want)
		}
	}
}
