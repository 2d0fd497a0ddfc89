//go:build !portaudio

package main

import (
	"fmt"

	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/capture"
	"github.com/tiroq/speechcollect/internal/config"
	"github.com/tiroq/speechcollect/internal/diaglog"
)

func newMicrophone(cfg *config.Config, logger *diaglog.Logger) (capture.Microphone, error) {
	switch cfg.Capture.Backend {
	case config.CaptureWS, "":
		return newWSMic(cfg, logger), nil
	case config.CapturePortAudio:
		return nil, fmt.Errorf("%w: built without the portaudio tag", capture.ErrUnsupportedEnvironment)
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Capture.Backend)
	}
}

func newPlayer() audio.Player { return audio.NullPlayer{} }
