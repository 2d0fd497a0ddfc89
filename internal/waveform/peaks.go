package waveform

// Peaks reduces the decoded audio to width columns of min/max values across
// all channels. It returns nil when nothing is loaded or width < 1.
func (e *Engine) Peaks(width int) []Peak {
	e.mu.Lock()
	pcm := e.pcm
	e.mu.Unlock()
	if pcm == nil || width < 1 {
		return nil
	}

	frames := pcm.Frames()
	peaks := make([]Peak, width)
	if frames == 0 {
		return peaks
	}
	for col := 0; col < width; col++ {
		from := col * frames / width
		to := (col + 1) * frames / width
		if to <= from {
			to = from + 1
		}
		if to > frames {
			to = frames
		}
		var p Peak
		for _, ch := range pcm.Channels {
			for _, s := range ch[from:to] {
				if s < p.Min {
					p.Min = s
				}
				if s > p.Max {
					p.Max = s
				}
			}
		}
		peaks[col] = p
	}
	return peaks
}

// ColumnForTime maps a time in seconds to a display column of a waveform
// drawn width columns wide.
func (e *Engine) ColumnForTime(t float64, width int) int {
	d := e.Duration()
	if d <= 0 || width < 1 {
		return 0
	}
	col := int(t / d * float64(width))
	if col < 0 {
		return 0
	}
	if col >= width {
		return width - 1
	}
	return col
}
