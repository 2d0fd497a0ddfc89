package tui

// Key bindings of the record page.
const (
	KeyQuit        = "q"
	KeyCtrlC       = "ctrl+c"
	KeyRecord      = " "
	KeySelectMode  = "s"
	KeyMarkStart   = "["
	KeyMarkEnd     = "]"
	KeyClear       = "x"
	KeyPlay        = "p"
	KeyPlayFull    = "P"
	KeyLeft        = "left"
	KeyRight       = "right"
	KeyLeftFast    = "shift+left"
	KeyRightFast   = "shift+right"
	KeyEdit        = "t"
	KeyEditDone    = "enter"
	KeyEditCancel  = "esc"
	KeyBackspace   = "backspace"
	KeyNextPrompt  = "n"
	KeySubmit      = "ctrl+s"
	KeySubmitUpper = "S"
)
