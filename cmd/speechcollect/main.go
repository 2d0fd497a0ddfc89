// Command speechcollect records prompted speech and submits it to the
// collection backend.
//
//	speechcollect record                  interactive record page
//	speechcollect daemon                  headless session driven by ctl
//	speechcollect ctl <command> [args]    send a command to the daemon
//	speechcollect trim -in a.wav -start 1 -end 2 -out b.wav
//	speechcollect label|validate          one pass through a backend queue
//	speechcollect export-diag             bundle the diagnostic log
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tiroq/speechcollect/internal/api"
	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/capture"
	"github.com/tiroq/speechcollect/internal/capture/wsmic"
	"github.com/tiroq/speechcollect/internal/config"
	"github.com/tiroq/speechcollect/internal/diaglog"
	"github.com/tiroq/speechcollect/internal/fileutil"
	"github.com/tiroq/speechcollect/internal/session"
	"github.com/tiroq/speechcollect/internal/submit"
	"github.com/tiroq/speechcollect/internal/waveform"
	"github.com/tiroq/speechcollect/internal/workbench"
)

const logPrefix = "[speechcollect]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog = log.New(os.Stdout, logPrefix+" ", log.LstdFlags)
	errLog = log.New(os.Stderr, logPrefix+" ERROR: ", log.LstdFlags)
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: speechcollect <command> [flags]

commands:
  record        interactive record page
  daemon        headless session controlled with ctl
  ctl           send a command to the daemon (start, stop, load, select,
                clear, play, pause, transcript, submit, next, quit, status)
  trim          cut a local audio file to a region and write WAV
  label         label the next clip of a queue
  validate      validate the next clip of a queue
  export-diag   bundle the diagnostic log into the current directory
  version       print the version`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	diaglog.Version = Version

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "record":
		err = runRecord(args)
	case "daemon":
		err = runDaemon(args)
	case "ctl":
		err = runCtl(args)
	case "trim":
		err = runTrim(args)
	case "label":
		err = runLabel(args)
	case "validate":
		err = runValidate(args)
	case "export-diag":
		err = runExportDiag(args)
	case "version", "-v", "--version":
		fmt.Println(Version)
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ve *submit.ValidationError
	switch {
	case errors.As(err, &ve):
		return 3
	case errors.Is(err, capture.ErrPermissionDenied), errors.Is(err, capture.ErrUnsupportedEnvironment):
		return 4
	case errors.Is(err, os.ErrNotExist):
		return 1
	default:
		return 2
	}
}

// initLogging points outLog and errLog at rotated files under dir.
func initLogging(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	outLog = log.New(&lumberjack.Logger{
		Filename:   filepath.Join(dir, "speechcollect.out.log"),
		MaxSize:    diaglog.MaxSizeMB,
		MaxBackups: 1,
	}, logPrefix+" ", log.LstdFlags)
	errLog = log.New(&lumberjack.Logger{
		Filename:   filepath.Join(dir, "speechcollect.err.log"),
		MaxSize:    diaglog.MaxSizeMB,
		MaxBackups: 1,
	}, logPrefix+" ERROR: ", log.LstdFlags)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func openDiagLog(cfg *config.Config) *diaglog.Logger {
	l, err := diaglog.New(cfg.LogPath)
	if err != nil {
		errLog.Printf("diagnostic log disabled: %v", err)
		return diaglog.NewNoOp()
	}
	return l
}

func newClient(cfg *config.Config, logger *diaglog.Logger) *api.Client {
	c := api.NewClient(api.Config{
		BaseURL:        cfg.API.BaseURL,
		TimeoutSeconds: cfg.API.TimeoutSeconds,
		Retries:        cfg.API.Retries,
		EnableHTTP2:    cfg.API.EnableHTTP2,
		UserAgent:      "speechcollect/" + Version,
	}, api.StaticToken(cfg.API.Token))
	c.SetLogger(logger)
	return c
}

func newDecoder(cfg *config.Config) audio.Decoder {
	return audio.AutoDecoder{Fallback: audio.FFmpegDecoder{Path: cfg.FFmpegPath}}
}

// newWSMic is shared by both microphone builds.
func newWSMic(cfg *config.Config, logger *diaglog.Logger) capture.Microphone {
	m := wsmic.New(cfg.Capture.AgentURL)
	m.SetLogger(logger)
	return m
}

// buildWorkbench assembles the pipeline from cfg. It returns the name of the
// capture backend for display.
func buildWorkbench(cfg *config.Config, logger *diaglog.Logger) (*workbench.Workbench, string, error) {
	mic, err := newMicrophone(cfg, logger)
	if err != nil {
		return nil, "", err
	}
	client := newClient(cfg, logger)
	dec := newDecoder(cfg)

	var archive *fileutil.Archive
	if cfg.ArchiveDir != "" {
		archive = &fileutil.Archive{Dir: cfg.ArchiveDir}
	}

	sess := session.New()
	wb := workbench.New(
		sess,
		capture.NewController(mic, sess),
		waveform.New(dec, newPlayer(), sess),
		submit.New(client, dec, sess, submit.Options{
			AllowAnonymous:   cfg.API.AllowAnonymous,
			TrimEnabled:      cfg.TrimEnabled,
			TranscriptPolicy: cfg.TranscriptPolicy,
			Archive:          archive,
			Version:          Version,
		}),
		client,
	)
	wb.SetLogger(logger)
	return wb, mic.Name(), nil
}

func runExportDiag(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dest := "."
	if len(args) > 0 {
		dest = args[0]
	}
	path, n, err := diaglog.Export(cfg.LogPath, dest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hint: run with %s=true to enable logging\n", diaglog.DebugEnv)
		}
		return err
	}
	fmt.Printf("Wrote: %s (%d lines)\n", path, n)
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
