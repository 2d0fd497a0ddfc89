package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/speechcollect/internal/diaglog"
	"github.com/tiroq/speechcollect/internal/ipc"
	"github.com/tiroq/speechcollect/internal/pidfile"
	"github.com/tiroq/speechcollect/internal/workbench"
)

const pollInterval = 1 * time.Second

// daemon runs a session without a terminal UI. Commands arrive through the
// ipc command file and the state is mirrored into status.json after each one.
type daemon struct {
	dir     string
	wb      *workbench.Workbench
	backend string
	logger  *diaglog.Logger
	quit    context.CancelFunc
}

func runDaemon(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (default ~/.config/speechcollect/config.json)")
	dir := fs.String("dir", ipc.DefaultDir(), "directory holding cmd.txt, status.json and the pid file")
	logToFile := fs.Bool("log-files", true, "write out/err logs under -dir instead of the terminal")
	_ = fs.Parse(args)

	if *logToFile {
		if err := initLogging(*dir); err != nil {
			errLog.Printf("file logging unavailable: %v", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			errLog.Printf("PANIC: %v", r)
			panic(r)
		}
	}()

	outLog.Printf("speechcollect daemon %s starting", Version)

	lock, err := pidfile.Acquire(pidfile.Path(*dir, "daemon"))
	if err != nil {
		var running *pidfile.RunningError
		if errors.As(err, &running) {
			errLog.Printf("%v", running)
		}
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			errLog.Printf("Failed to remove pid file: %v", err)
		}
	}()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	logger := openDiagLog(cfg)
	defer logger.Close()

	wb, backend, err := buildWorkbench(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := wb.Close(); err != nil {
			errLog.Printf("release microphone: %v", err)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	d := &daemon{dir: *dir, wb: wb, backend: backend, logger: logger, quit: cancel}
	d.writeStatus()
	outLog.Printf("Capture backend: %s", backend)
	outLog.Printf("Command file: %s", ipc.CommandPath(*dir))

	go d.watchCommands(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			outLog.Println("Shutting down")
			d.writeStatus()
			return nil
		case <-ticker.C:
			// Keeps duration and playback state fresh while recording.
			d.writeStatus()
		}
	}
}

func (d *daemon) writeStatus() {
	if err := ipc.WriteStatus(d.dir, d.wb.Status(d.backend)); err != nil {
		errLog.Printf("Failed to write status: %v", err)
	}
}

// handle reads and runs the pending command, if any.
func (d *daemon) handle(ctx context.Context) {
	cmd, err := ipc.ReadCommand(d.dir)
	if err != nil {
		errLog.Printf("Bad command: %v", err)
		d.wb.Session.SetLastError(err.Error())
		d.writeStatus()
		return
	}
	if cmd == nil {
		return
	}

	outLog.Printf("Received command: %s", cmd)
	d.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentDaemon,
		Event:     diaglog.EventCommandReceived,
		SessionID: d.wb.Session.ID(),
		Payload:   map[string]interface{}{"command": string(cmd.Name), "args": len(cmd.Args)},
	})

	if cmd.Name == ipc.CmdQuit {
		d.quit()
		return
	}
	if err := d.wb.Execute(ctx, *cmd); err != nil {
		errLog.Printf("%s failed: %v", cmd.Name, err)
	}
	d.writeStatus()
}

// watchCommands waits for writes to the command file with fsnotify and
// falls back to polling when the watcher cannot be used.
func (d *daemon) watchCommands(ctx context.Context) {
	cmdPath := ipc.CommandPath(d.dir)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		d.pollCommands(ctx, cmdPath)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			errLog.Printf("Failed to close watcher: %v", err)
		}
	}()

	if err := watcher.Add(filepath.Dir(cmdPath)); err != nil {
		errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		d.pollCommands(ctx, cmdPath)
		return
	}
	outLog.Println("Command watcher started (using fsnotify)")

	// Catches writes fsnotify misses, e.g. on network filesystems.
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				outLog.Println("fsnotify watcher closed, switching to polling")
				d.pollCommands(ctx, cmdPath)
				return
			}
			if event.Name == cmdPath && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				time.Sleep(50 * time.Millisecond)
				d.handle(ctx)
				lastCheck = time.Now()
			}
		case <-pollTicker.C:
			if changedSince(cmdPath, lastCheck) {
				time.Sleep(50 * time.Millisecond)
				d.handle(ctx)
				lastCheck = time.Now()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				outLog.Println("fsnotify error channel closed, switching to polling")
				d.pollCommands(ctx, cmdPath)
				return
			}
			errLog.Printf("File watcher error: %v", err)
		}
	}
}

func (d *daemon) pollCommands(ctx context.Context, cmdPath string) {
	outLog.Println("Command watcher started (using polling fallback, 1s interval)")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if changedSince(cmdPath, lastCheck) {
				time.Sleep(50 * time.Millisecond)
				d.handle(ctx)
				lastCheck = time.Now()
			}
		}
	}
}

func changedSince(path string, t time.Time) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.ModTime().After(t)
}
