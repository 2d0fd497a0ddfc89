package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpegDecoder decodes any container ffmpeg understands (webm/opus from
// browsers, ogg, m4a) by converting it to 16-bit WAV in a temp dir and
// handing the result to WAVDecoder.
type FFmpegDecoder struct {
	Path   string // ffmpeg binary, default "ffmpeg"
	TmpDir string // default os.TempDir()
}

// Decode implements Decoder.
func (d FFmpegDecoder) Decode(ctx context.Context, data []byte) (*PCM, error) {
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	bin := d.Path
	if bin == "" {
		bin = "ffmpeg"
	}

	dir, err := os.MkdirTemp(d.TmpDir, "speechcollect-decode-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input")
	out := filepath.Join(dir, "output.wav")
	if err := os.WriteFile(in, data, 0600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	// ffmpeg -y -i input -acodec pcm_s16le -f wav output.wav
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-y", "-i", in,
		"-acodec", "pcm_s16le",
		"-f", "wav",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	wavData, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", err)
	}
	return WAVDecoder{}.Decode(ctx, wavData)
}

// AutoDecoder decodes WAV natively and everything else through Fallback.
// A nil Fallback makes non-WAV input a decode failure.
type AutoDecoder struct {
	Fallback Decoder
}

// Decode implements Decoder.
func (d AutoDecoder) Decode(ctx context.Context, data []byte) (*PCM, error) {
	if IsWAV(data) {
		return WAVDecoder{}.Decode(ctx, data)
	}
	if d.Fallback == nil {
		return nil, errors.New("unsupported audio container (no fallback decoder)")
	}
	return d.Fallback.Decode(ctx, data)
}
