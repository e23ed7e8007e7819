// Package render draws session snapshots on a terminal.
package render

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"voxcanvas/internal/session"
)

// Theme defines the color scheme.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Live    lipgloss.Color
	Warn    lipgloss.Color
}

// DefaultTheme is the default gallery theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#c792ea"),
	Dim:     lipgloss.Color("#6e7681"),
	Live:    lipgloss.Color("#00ff9f"),
	Warn:    lipgloss.Color("#ff5370"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Caption lipgloss.Style
	Live    lipgloss.Style
	Warn    lipgloss.Style
	Help    lipgloss.Style
	Box     lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Caption: lipgloss.NewStyle().Italic(true),
		Live:    lipgloss.NewStyle().Bold(true).Foreground(t.Live),
		Warn:    lipgloss.NewStyle().Bold(true).Foreground(t.Warn),
		Help:    lipgloss.NewStyle().Foreground(t.Dim),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(0, 1),
	}
}

const helpLine = "p prev · n next · l live · m mic · d debug · load <name> · sessions · export · q quit"

// Frame formats a snapshot as a block of text width columns wide.
func Frame(st Styles, snap session.Snapshot, width int, debug bool) string {
	if width < 20 {
		width = 20
	}
	inner := width - 4

	var lines []string

	header := st.Title.Render("VOXCANVAS") + "  " + connection(st, snap.Connection) + "  " + mic(st, snap.MicActive)
	lines = append(lines, header, "")

	d := snap.Display
	if d.IsLive {
		lines = append(lines, st.Live.Render("● LIVE"))
	} else {
		lines = append(lines, st.Label.Render("◀ HISTORY "+d.PositionLabel))
	}
	image := d.Image
	if image == "" {
		image = "(waiting for the first image)"
	}
	lines = append(lines, truncate(image, inner))
	if d.Caption != "" {
		lines = append(lines, st.Caption.Render(truncate("“"+d.Caption+"”", inner)))
	}
	lines = append(lines, "")

	status := snap.Status
	if snap.Generating {
		status = "✦ " + status
	}
	if status != "" {
		lines = append(lines, st.Label.Render("Status ")+truncate(status, inner-7))
	}
	if snap.HistoryLen > 0 {
		lines = append(lines, st.Help.Render(fmt.Sprintf("%d in history", snap.HistoryLen)))
	}
	if m := snap.Metrics; m != nil {
		lines = append(lines, st.Label.Render("Cost ")+fmt.Sprintf("$%.4f", m.Cost.Total)+latency(m.Latency))
	}

	if debug {
		if len(snap.Questions) > 0 {
			lines = append(lines, "", st.Label.Render("Questions"))
			for _, q := range snap.Questions {
				lines = append(lines, truncate("· "+q, inner))
			}
		}
		if len(snap.Debug) > 0 {
			lines = append(lines, "", st.Label.Render("Transcript"))
			for _, t := range snap.Debug {
				lines = append(lines, st.Help.Render(truncate(t, inner)))
			}
		}
		if snap.ProtocolErrors > 0 {
			lines = append(lines, st.Warn.Render(fmt.Sprintf("%d malformed messages dropped", snap.ProtocolErrors)))
		}
	}

	box := st.Box.Width(width - 2).Render(strings.Join(lines, "\n"))
	return box + "\n" + st.Help.Render(helpLine)
}

func connection(st Styles, c session.ConnectionState) string {
	switch c {
	case session.StateOpen:
		return st.Live.Render("● connected")
	case session.StateClosed:
		return st.Warn.Render("● disconnected")
	default:
		return st.Help.Render("○ connecting")
	}
}

func mic(st Styles, on bool) string {
	if on {
		return st.Live.Render("🎙 listening")
	}
	return st.Help.Render("🎙 muted")
}

func latency(l map[string]float64) string {
	if len(l) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(l)) {
		fmt.Fprintf(&b, "  %s %.1fs", k, l[k])
	}
	return b.String()
}

func truncate(s string, w int) string {
	if w < 2 || lipgloss.Width(s) <= w {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r)) > w-1 {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}

// Terminal redraws a snapshot on every change, skipping identical frames.
// Operator notices are shown under the frame until replaced.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
	width  int
	debug  bool
	clear  bool

	snap   session.Snapshot
	drawn  bool
	notice string
	last   string
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithWidth sets the frame width. Default: 72.
func WithWidth(w int) TerminalOption {
	return func(t *Terminal) { t.width = w }
}

// WithDebug shows questions, transcript fragments and dropped messages.
func WithDebug(on bool) TerminalOption {
	return func(t *Terminal) { t.debug = on }
}

// WithClear clears the screen before each frame.
func WithClear(on bool) TerminalOption {
	return func(t *Terminal) { t.clear = on }
}

// NewTerminal creates a renderer that writes to out.
func NewTerminal(out io.Writer, opts ...TerminalOption) *Terminal {
	t := &Terminal{out: out, styles: NewStyles(DefaultTheme), width: 72}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Draw renders snap if it differs from the last frame drawn.
func (t *Terminal) Draw(snap session.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = snap
	t.drawn = true
	t.paint()
}

// Notice shows text below the frame until the next notice.
func (t *Terminal) Notice(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notice = strings.TrimRight(text, "\n")
	if !t.drawn {
		io.WriteString(t.out, t.notice+"\n")
		return
	}
	t.paint()
}

// SetDebug toggles the debug sections and repaints.
func (t *Terminal) SetDebug(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debug = on
	t.last = ""
	if t.drawn {
		t.paint()
	}
}

// Debug reports whether the debug sections are shown.
func (t *Terminal) Debug() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.debug
}

func (t *Terminal) paint() {
	frame := Frame(t.styles, t.snap, t.width, t.debug)
	if t.notice != "" {
		frame += "\n\n" + t.notice
	}
	if frame == t.last {
		return
	}
	t.last = frame
	if t.clear {
		io.WriteString(t.out, "\x1b[H\x1b[2J")
	}
	io.WriteString(t.out, frame+"\n")
}
