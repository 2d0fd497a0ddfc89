package tui

import (
	"github.com/tiroq/speechcollect/internal/submit"
)

// tickMsg refreshes the elapsed time and playback state.
type tickMsg struct{}

// actionDoneMsg reports the end of a workbench call run off the update loop.
type actionDoneMsg struct {
	action string
	err    error
}

// submittedMsg reports the outcome of a submission.
type submittedMsg struct {
	result *submit.Result
	err    error
}

// clearNoticeMsg drops a transient notice.
type clearNoticeMsg struct{ seq int }
