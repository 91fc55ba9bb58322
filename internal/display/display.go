package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Color is a fill color of a display segment
type Color int

const (
	Off Color = iota
	Blue
	Green
	Red
	Yellow
	Grey
)

func (c Color) String() string {
	switch c {
	case Off:
		return "off"
	case Blue:
		return "blue"
	case Green:
		return "green"
	case Red:
		return "red"
	case Yellow:
		return "yellow"
	case Grey:
		return "grey"
	default:
		return fmt.Sprintf("Color(%d)", int(c))
	}
}

// Segment is a part of the display that is colored independently
type Segment int

const (
	Left Segment = iota
	Right
	numSegments
)

// Whole addresses every segment at once
const Whole Segment = -1

// Display shows colors to the performer
type Display interface {
	// SetColor fills the segment with c
	SetColor(s Segment, c Color)
	// Flash fills the segment with c for d, then restores the color set last
	Flash(s Segment, c Color, d time.Duration)
	// Close clears the display
	Close() error
}

// ansi maps colors to SGR background codes
var ansi = map[Color]string{
	Off:    "49",
	Blue:   "44",
	Green:  "42",
	Red:    "41",
	Yellow: "43",
	Grey:   "100",
}

// Terminal draws the segments as colored blocks on one terminal line
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	width   int
	base    [numSegments]Color
	flash   [numSegments]*time.Timer
	flashed [numSegments]Color
	closed  bool
}

// NewTerminal creates a display writing to out with segments of width columns
func NewTerminal(out io.Writer, width int) *Terminal {
	if width <= 0 {
		width = 20
	}
	t := &Terminal{out: out, width: width}
	t.mu.Lock()
	t.drawLocked()
	t.mu.Unlock()
	return t
}

// SetColor fills the segment with c. A running flash keeps showing until it ends.
func (t *Terminal) SetColor(s Segment, c Color) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	for _, i := range segments(s) {
		t.base[i] = c
	}
	t.drawLocked()
}

// Flash fills the segment with c for d
func (t *Terminal) Flash(s Segment, c Color, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	for _, i := range segments(s) {
		if t.flash[i] != nil {
			t.flash[i].Stop()
		}
		t.flashed[i] = c
		var timer *time.Timer
		timer = time.AfterFunc(d, func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.closed || t.flash[i] != timer {
				return
			}
			t.flash[i] = nil
			t.drawLocked()
		})
		t.flash[i] = timer
	}
	t.drawLocked()
}

// Colors returns the colors currently shown, flashes included
func (t *Terminal) Colors() (left, right Color) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shownLocked(Left), t.shownLocked(Right)
}

// Close stops pending flashes and resets the terminal colors
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	for i, timer := range t.flash {
		if timer != nil {
			timer.Stop()
			t.flash[i] = nil
		}
	}
	_, err := io.WriteString(t.out, "\r\033[0m\033[2K")
	return err
}

func (t *Terminal) shownLocked(i Segment) Color {
	if t.flash[i] != nil {
		return t.flashed[i]
	}
	return t.base[i]
}

func (t *Terminal) drawLocked() {
	var b strings.Builder
	b.WriteString("\r")
	for i := Segment(0); i < numSegments; i++ {
		fmt.Fprintf(&b, "\033[%sm%s", ansi[t.shownLocked(i)], strings.Repeat(" ", t.width))
	}
	b.WriteString("\033[0m")
	io.WriteString(t.out, b.String())
}

func segments(s Segment) []Segment {
	if s == Whole {
		return []Segment{Left, Right}
	}
	if s < 0 || s >= numSegments {
		return nil
	}
	return []Segment{s}
}

// Nop is a display that shows nothing
type Nop struct{}

func (Nop) SetColor(Segment, Color) {}

func (Nop) Flash(Segment, Color, time.Duration) {}

func (Nop) Close() error { return nil }
