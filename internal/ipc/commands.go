// Package ipc is the file-based control channel between the ctl client and
// a running daemon: one pending command in cmd.txt, the latest session state
// in status.json.
package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CommandName identifies a daemon action.
type CommandName string

const (
	CmdStart      CommandName = "start"      // begin recording
	CmdStop       CommandName = "stop"       // stop recording
	CmdLoad       CommandName = "load"       // load <path>
	CmdSelect     CommandName = "select"     // select <start> <end> in seconds
	CmdClear      CommandName = "clear"      // drop the selection
	CmdPlay       CommandName = "play"       // play the selection, or everything
	CmdPause      CommandName = "pause"      // stop playback
	CmdTranscript CommandName = "transcript" // transcript <text...>
	CmdSubmit     CommandName = "submit"
	CmdNext       CommandName = "next" // fetch a new prompt
	CmdQuit       CommandName = "quit"
)

// ErrUnknownCommand is returned for a command line that names no action.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a parsed control line.
type Command struct {
	Name CommandName
	Args []string
}

// String renders the command as a single control line.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return string(c.Name)
	}
	return string(c.Name) + " " + strings.Join(c.Args, " ")
}

// Range returns the two bounds of a select command.
func (c Command) Range() (float64, float64, error) {
	if c.Name != CmdSelect || len(c.Args) != 2 {
		return 0, 0, fmt.Errorf("select needs <start> <end>")
	}
	start, err := strconv.ParseFloat(c.Args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("select start: %w", err)
	}
	end, err := strconv.ParseFloat(c.Args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("select end: %w", err)
	}
	return start, end, nil
}

// Text returns the argument of a transcript command with its spacing
// collapsed to single blanks.
func (c Command) Text() string {
	return strings.Join(c.Args, " ")
}

// ParseCommand parses one control line. Argument counts are checked here so
// the daemon only sees well-formed commands.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrUnknownCommand
	}
	cmd := Command{Name: CommandName(strings.ToLower(fields[0])), Args: fields[1:]}

	switch cmd.Name {
	case CmdStart, CmdStop, CmdClear, CmdPlay, CmdPause, CmdSubmit, CmdNext, CmdQuit:
		if len(cmd.Args) != 0 {
			return Command{}, fmt.Errorf("%s takes no arguments", cmd.Name)
		}
	case CmdSelect:
		if _, _, err := cmd.Range(); err != nil {
			return Command{}, err
		}
	case CmdLoad:
		if len(cmd.Args) == 0 {
			return Command{}, fmt.Errorf("load needs <path>")
		}
	case CmdTranscript:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
	return cmd, nil
}

// DefaultDir returns ~/.cache/speechcollect.
func DefaultDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "speechcollect")
}

// CommandPath returns the command file inside dir.
func CommandPath(dir string) string {
	return filepath.Join(dir, "cmd.txt")
}

// WriteCommand leaves cmd for the daemon watching dir. A pending command that
// was not read yet is replaced.
func WriteCommand(dir string, cmd Command) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(CommandPath(dir), []byte(cmd.String()), 0644)
}

// ReadCommand reads and clears the pending command. It returns nil when
// nothing is pending. A malformed line is cleared too and reported as an
// error.
func ReadCommand(dir string) (*Command, error) {
	path := CommandPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		return nil, nil
	}

	// Clear before acting so a crash cannot replay it.
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return nil, err
	}

	cmd, err := ParseCommand(line)
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}
