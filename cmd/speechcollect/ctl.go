package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tiroq/speechcollect/internal/ipc"
	"github.com/tiroq/speechcollect/internal/pidfile"
)

func runCtl(args []string) error {
	fs := flag.NewFlagSet("ctl", flag.ExitOnError)
	dir := fs.String("dir", ipc.DefaultDir(), "daemon directory")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("ctl: missing command")
	}
	if pidfile.Owner(pidfile.Path(*dir, "daemon")) == 0 {
		fmt.Fprintln(os.Stderr, "warning: no daemon is running; the command will wait for the next one")
	}

	if fs.Arg(0) == "status" {
		return printStatus(*dir)
	}

	cmd, err := ipc.ParseCommand(strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	if err := ipc.WriteCommand(*dir, cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	fmt.Printf("sent: %s\n", cmd)
	return nil
}

func printStatus(dir string) error {
	st, err := ipc.ReadStatus(dir)
	if err != nil {
		return err
	}
	fmt.Printf("session:    %s\n", st.SessionID)
	fmt.Printf("stage:      %s\n", st.Stage)
	if st.PromptID != "" {
		fmt.Printf("prompt:     [%s] %s\n", st.PromptID, st.PromptText)
	}
	fmt.Printf("transcript: %q\n", st.Transcript)
	if st.HasRecording {
		fmt.Printf("recording:  %s, %d bytes, %.2fs\n", st.MIMEType, st.Bytes, st.DurationSeconds)
	}
	if st.Selection != nil {
		fmt.Printf("selection:  %.2fs-%.2fs\n", st.Selection[0], st.Selection[1])
	}
	fmt.Printf("playing:    %v\n", st.Playing)
	fmt.Printf("backend:    %s\n", st.Backend)
	if st.LastAction != "" {
		fmt.Printf("last:       %s\n", st.LastAction)
	}
	if st.LastError != "" {
		fmt.Printf("error:      %s\n", st.LastError)
	}
	fmt.Printf("updated:    %s\n", st.Timestamp.Format(time.RFC3339))
	return nil
}
