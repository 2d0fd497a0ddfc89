package main

import (
	"errors"
	"flag"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tiroq/speechcollect/internal/tui"
)

func runRecord(args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file (default ~/.config/speechcollect/config.json)")
	_ = fs.Parse(args)

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

	p := tea.NewProgram(tui.New(ctx, wb, backend), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
