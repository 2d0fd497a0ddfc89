// Package config loads the client configuration from
// ~/.config/speechcollect/config.json with environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Environment overrides.
const (
	EnvAPIURL  = "SPEECHCOLLECT_API_URL"
	EnvToken   = "SPEECHCOLLECT_TOKEN"
	EnvLogPath = "SPEECHCOLLECT_LOG_PATH"
	EnvConfig  = "SPEECHCOLLECT_CONFIG"
)

// CaptureBackend selects the Microphone implementation.
type CaptureBackend string

const (
	CaptureWS        CaptureBackend = "ws"        // websocket capture agent
	CapturePortAudio CaptureBackend = "portaudio" // local device, needs the portaudio build tag
)

// TranscriptPolicy says what happens to the transcript after a successful
// submission.
type TranscriptPolicy string

const (
	TranscriptKeep   TranscriptPolicy = "keep"   // leave the text as typed
	TranscriptClear  TranscriptPolicy = "clear"  // empty the field
	TranscriptPrompt TranscriptPolicy = "prompt" // prefill with the next prompt text
)

// APIConfig holds backend connection settings.
type APIConfig struct {
	BaseURL        string `json:"base_url"`
	Token          string `json:"token,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Retries        int    `json:"retries"`
	EnableHTTP2    bool   `json:"enable_http2,omitempty"`
	AllowAnonymous bool   `json:"allow_anonymous"`
}

// CaptureConfig holds microphone settings.
type CaptureConfig struct {
	Backend    CaptureBackend `json:"backend"`
	AgentURL   string         `json:"agent_url,omitempty"` // ws backend only
	SampleRate int            `json:"sample_rate"`         // portaudio backend only
	Channels   int            `json:"channels"`            // portaudio backend only
}

// Config is the full client configuration.
type Config struct {
	API              APIConfig        `json:"api"`
	Capture          CaptureConfig    `json:"capture"`
	TrimEnabled      bool             `json:"trim_enabled"`
	FFmpegPath       string           `json:"ffmpeg_path,omitempty"`
	ArchiveDir       string           `json:"archive_dir,omitempty"` // empty disables the local archive
	TranscriptPolicy TranscriptPolicy `json:"transcript_policy"`
	LogPath          string           `json:"log_path,omitempty"`
	Queue            string           `json:"queue"` // resource name of the label/validate queues
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 30,
			Retries:        3,
			AllowAnonymous: true,
		},
		Capture: CaptureConfig{
			Backend:    CaptureWS,
			AgentURL:   "ws://localhost:4460/mic",
			SampleRate: 16000,
			Channels:   1,
		},
		TrimEnabled:      true,
		FFmpegPath:       "ffmpeg",
		TranscriptPolicy: TranscriptKeep,
		LogPath:          filepath.Join(os.TempDir(), "speechcollect-debug.log"),
		Queue:            "splice",
	}
}

// Path returns the config file location, honoring SPEECHCOLLECT_CONFIG.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "speechcollect", "config.json")
}

// Load reads the config file at Path, falls back to Default when it does not
// exist, applies environment overrides and validates the result.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults
	default:
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvToken); ok {
		c.API.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv(EnvLogPath); v != "" {
		c.LogPath = v
	}
	if v := os.Getenv("SPEECHCOLLECT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.API.Retries = n
		}
	}
}

// Save writes the config to path with indentation, creating the directory.
func Save(path string, c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// The file may carry a token.
	return os.WriteFile(path, data, 0600)
}

// Validate checks Config for validity.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.TimeoutSeconds < 1 || c.API.TimeoutSeconds > 600 {
		return fmt.Errorf("api.timeout_seconds must be between 1 and 600, got %d", c.API.TimeoutSeconds)
	}
	if c.API.Retries < 0 || c.API.Retries > 10 {
		return fmt.Errorf("api.retries must be between 0 and 10, got %d", c.API.Retries)
	}

	switch c.Capture.Backend {
	case CaptureWS:
		u, err := url.Parse(c.Capture.AgentURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("capture.agent_url must be a ws(s) URL, got %q", c.Capture.AgentURL)
		}
	case CapturePortAudio:
		if c.Capture.SampleRate < 8000 || c.Capture.SampleRate > 192000 {
			return fmt.Errorf("capture.sample_rate must be between 8000 and 192000, got %d", c.Capture.SampleRate)
		}
		if c.Capture.Channels < 1 || c.Capture.Channels > 2 {
			return fmt.Errorf("capture.channels must be 1 or 2, got %d", c.Capture.Channels)
		}
	default:
		return fmt.Errorf("capture.backend must be %q or %q, got %q", CaptureWS, CapturePortAudio, c.Capture.Backend)
	}

	switch c.TranscriptPolicy {
	case TranscriptKeep, TranscriptClear, TranscriptPrompt:
	default:
		return fmt.Errorf("transcript_policy must be keep, clear or prompt, got %q", c.TranscriptPolicy)
	}

	if strings.Trim(c.Queue, "/ ") == "" {
		return fmt.Errorf("queue must not be empty")
	}
	return nil
}
