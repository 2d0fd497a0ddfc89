// Package tui is the interactive record page: prompt, capture, waveform with
// a single selectable region, transcript entry and submission.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tiroq/speechcollect/internal/session"
	"github.com/tiroq/speechcollect/internal/submit"
	"github.com/tiroq/speechcollect/internal/workbench"
)

const (
	tickInterval = 200 * time.Millisecond
	noticeTTL    = 6 * time.Second
	cursorStep   = 0.1
	cursorJump   = 1.0
)

var levels = []rune("▁▂▃▄▅▆▇█")

// Model is the root bubbletea model of the record page.
type Model struct {
	ctx     context.Context
	wb      *workbench.Workbench
	backend string

	width  int
	height int

	// Selection cursor and the pending region start, in seconds.
	cursor    float64
	markStart *float64

	editing bool
	draft   string

	busy      string
	notice    string
	noticeErr bool
	noticeSeq int
}

// New creates the record page for wb. backend names the capture backend in
// the header.
func New(ctx context.Context, wb *workbench.Workbench, backend string) Model {
	return Model{ctx: ctx, wb: wb, backend: backend}
}

// Init starts the refresh tick and fetches a prompt when none is loaded.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	if m.wb.Session.Prompt() == nil {
		cmds = append(cmds, m.run("next", m.wb.NextPrompt))
	}
	return tea.Batch(cmds...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

// run executes fn off the update loop and reports back with actionDoneMsg.
func (m Model) run(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) submitCmd() tea.Cmd {
	ctx := m.ctx
	wb := m.wb
	return func() tea.Msg {
		res, err := wb.SubmitRecording(ctx)
		return submittedMsg{result: res, err: err}
	}
}

func (m *Model) setNotice(text string, isErr bool) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.noticeErr = isErr
	seq := m.noticeSeq
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return clearNoticeMsg{seq: seq} })
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tickCmd()

	case actionDoneMsg:
		m.busy = ""
		if msg.err != nil {
			return m, m.setNotice(msg.err.Error(), true)
		}
		switch msg.action {
		case "start", "stop":
			m.cursor = 0
			m.markStart = nil
		case "next":
			if m.wb.Session.Prompt() == nil {
				return m, m.setNotice("No prompt available right now.", false)
			}
		}
		return m, nil

	case submittedMsg:
		m.busy = ""
		if msg.err != nil {
			return m, m.setNotice(submitMessage(msg.err), true)
		}
		m.cursor = 0
		m.markStart = nil
		text := "Submitted."
		if msg.result.BackendMessage != "" {
			text = msg.result.BackendMessage
		}
		if len(msg.result.Warnings) > 0 {
			text += " " + strings.Join(msg.result.Warnings, "; ")
		}
		return m, m.setNotice(text, false)

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
			m.noticeErr = false
		}
		return m, nil
	}
	return m, nil
}

func submitMessage(err error) string {
	var ve *submit.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	var se *submit.SubmissionError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyCtrlC {
		_ = m.wb.Close()
		return m, tea.Quit
	}
	if m.editing {
		return m.handleEditKey(msg)
	}
	if m.busy != "" {
		return m, nil
	}

	switch key {
	case KeyQuit:
		_ = m.wb.Close()
		return m, tea.Quit

	case KeyRecord:
		action := "start"
		if m.wb.Capture.IsRecording() {
			action = "stop"
		}
		m.busy = action
		return m, m.run(action, m.wb.ToggleRecording)

	case KeySelectMode:
		enabled := !m.wb.Waveform.SelectionEnabled()
		m.wb.Waveform.EnableRegionSelection(enabled)
		m.markStart = nil
		return m, nil

	case KeyLeft:
		m.moveCursor(-cursorStep)
	case KeyRight:
		m.moveCursor(cursorStep)
	case KeyLeftFast:
		m.moveCursor(-cursorJump)
	case KeyRightFast:
		m.moveCursor(cursorJump)

	case KeyMarkStart:
		if !m.wb.Waveform.Loaded() {
			return m, m.setNotice("Nothing to select on.", true)
		}
		m.wb.Waveform.EnableRegionSelection(true)
		start := m.cursor
		m.markStart = &start
		return m, nil

	case KeyMarkEnd:
		if m.markStart == nil {
			return m, m.setNotice("Mark the region start with [ first.", true)
		}
		if err := m.wb.Select(*m.markStart, m.cursor); err != nil {
			return m, m.setNotice(err.Error(), true)
		}
		m.markStart = nil
		return m, nil

	case KeyClear:
		m.wb.ClearSelection()
		m.markStart = nil
		return m, nil

	case KeyPlay:
		return m, m.run("play", m.wb.Play)

	case KeyPlayFull:
		return m, m.run("play", m.wb.Waveform.PlayFull)

	case KeyEdit:
		m.editing = true
		m.draft = m.wb.Session.Transcript()
		return m, nil

	case KeyNextPrompt:
		m.busy = "next"
		return m, m.run("next", m.wb.NextPrompt)

	case KeySubmit, KeySubmitUpper:
		m.busy = "submit"
		return m, m.submitCmd()
	}
	return m, nil
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEditDone:
		m.wb.SetTranscript(m.draft)
		m.editing = false
	case KeyEditCancel:
		m.editing = false
	case KeyBackspace:
		r := []rune(m.draft)
		if len(r) > 0 {
			m.draft = string(r[:len(r)-1])
		}
	default:
		switch msg.Type {
		case tea.KeyRunes:
			m.draft += string(msg.Runes)
		case tea.KeySpace:
			m.draft += " "
		}
	}
	return m, nil
}

func (m *Model) moveCursor(delta float64) {
	d := m.wb.Waveform.Duration()
	m.cursor = math.Max(0, math.Min(d, m.cursor+delta))
}

func (m Model) waveWidth() int {
	if m.width <= 0 {
		return 78
	}
	return max(20, m.width-2)
}

// View renders the page.
func (m Model) View() string {
	snap := m.wb.Session.Snapshot()
	width := m.waveWidth()
	var sections []string

	header := titleStyle.Render("SPEECHCOLLECT")
	if m.backend != "" {
		header += dimStyle.Render("  mic: " + m.backend)
	}
	sections = append(sections, header)

	if snap.Prompt != nil {
		sections = append(sections, dimStyle.Render("Prompt #"+snap.Prompt.ID+": ")+promptStyle.Render(snap.Prompt.Text))
	} else {
		sections = append(sections, dimStyle.Render("No prompt loaded. Press n to fetch one."))
	}

	sections = append(sections, m.renderStatus(snap))
	sections = append(sections, dividerStyle.Render(strings.Repeat("─", width)))
	sections = append(sections, m.renderWaveform(snap, width))
	sections = append(sections, m.renderTimeline(snap))
	sections = append(sections, dividerStyle.Render(strings.Repeat("─", width)))
	sections = append(sections, m.renderTranscript(snap))

	switch {
	case m.notice != "" && m.noticeErr:
		sections = append(sections, errorStyle.Render(m.notice))
	case m.notice != "":
		sections = append(sections, okStyle.Render(m.notice))
	case snap.LastError != "":
		sections = append(sections, errorStyle.Render(snap.LastError))
	}

	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderStatus(snap session.Snapshot) string {
	var s string
	if snap.Stage == session.StageRecording {
		s = recordingStyle.Render("● REC " + formatElapsed(m.wb.Capture.Elapsed()))
	} else {
		s = idleStyle.Render("○ " + strings.ToUpper(string(snap.Stage)))
	}
	if m.busy != "" {
		s += dimStyle.Render("  " + m.busy + "...")
	}
	if m.wb.Waveform.IsPlaying() {
		s += okStyle.Render("  ▶ playing")
	}
	if m.wb.Waveform.SelectionEnabled() {
		s += editingStyle.Render("  [select]")
	}
	return s
}

func formatElapsed(d time.Duration) string {
	total := d.Seconds()
	mins := int(total) / 60
	return fmt.Sprintf("%02d:%04.1f", mins, total-float64(mins*60))
}

func (m Model) renderWaveform(snap session.Snapshot, width int) string {
	peaks := m.wb.Waveform.Peaks(width)
	if peaks == nil {
		switch {
		case snap.Blob != nil && m.wb.Waveform.DecodeErr() != nil:
			return dimStyle.Render("(this recording cannot be displayed; it can still be submitted)")
		case snap.Stage == session.StageRecording:
			return recordingStyle.Render("(recording...)")
		default:
			return dimStyle.Render("(no recording)")
		}
	}

	regionFrom, regionTo := -1, -1
	if r := m.wb.Waveform.Region(); r != nil {
		lo, hi := math.Min(r.Start, r.End), math.Max(r.Start, r.End)
		regionFrom = m.wb.Waveform.ColumnForTime(lo, width)
		regionTo = m.wb.Waveform.ColumnForTime(hi, width)
	}
	cursorCol := -1
	if m.wb.Waveform.SelectionEnabled() {
		cursorCol = m.wb.Waveform.ColumnForTime(m.cursor, width)
	}

	var b strings.Builder
	for col, p := range peaks {
		amp := math.Max(math.Abs(float64(p.Min)), math.Abs(float64(p.Max)))
		idx := int(amp * float64(len(levels)-1))
		idx = max(0, min(len(levels)-1, idx))
		ch := string(levels[idx])
		switch {
		case col == cursorCol:
			b.WriteString(cursorStyle.Render("┃"))
		case col >= regionFrom && col <= regionTo && regionFrom >= 0:
			b.WriteString(regionStyle.Render(ch))
		default:
			b.WriteString(waveStyle.Render(ch))
		}
	}
	return b.String()
}

func (m Model) renderTimeline(snap session.Snapshot) string {
	d := m.wb.Waveform.Duration()
	if d == 0 {
		return ""
	}
	line := fmt.Sprintf("%.2fs", d)
	if m.wb.Waveform.SelectionEnabled() {
		line += fmt.Sprintf("  cursor %.2fs", m.cursor)
	}
	if m.markStart != nil {
		line += fmt.Sprintf("  start %.2fs", *m.markStart)
	}
	if snap.Selection != nil {
		n := snap.Selection.Normalized()
		line += fmt.Sprintf("  selection %.2fs-%.2fs", n.Start, n.End)
	}
	return dimStyle.Render(line)
}

func (m Model) renderTranscript(snap session.Snapshot) string {
	label := dimStyle.Render("Transcript: ")
	if m.editing {
		return label + editingStyle.Render(m.draft+"▏")
	}
	if strings.TrimSpace(snap.Transcript) == "" {
		return label + dimStyle.Render("(press t to type what you said)")
	}
	return label + snap.Transcript
}

func (m Model) renderFooter() string {
	type binding struct{ key, desc string }
	var bindings []binding
	if m.editing {
		bindings = []binding{{"enter", "save"}, {"esc", "cancel"}}
	} else {
		bindings = []binding{
			{"space", "rec/stop"}, {"s", "select"}, {"←/→", "cursor"}, {"[ ]", "mark"},
			{"x", "clear"}, {"p/P", "play"}, {"t", "transcript"}, {"n", "next"},
			{"S", "submit"}, {"q", "quit"},
		}
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, footerKeyStyle.Render(b.key)+" "+footerDescStyle.Render(b.desc))
	}
	return strings.Join(parts, "  ")
}
