package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(PageWidth + 4)

	labelStyle  = lipgloss.NewStyle().Bold(true)
	alarmStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#575B7E"))
)

// Term draws the status panel to a terminal. A new frame is written only when
// its content changes. It is safe for concurrent use.
type Term struct {
	w     io.Writer
	clear bool
	now   func() time.Time

	mu     sync.Mutex
	last   string
	status Status
	footer footer
}

// NewTerm creates a terminal renderer writing to w. With clear set every frame
// starts by clearing the screen.
func NewTerm(w io.Writer, clear bool) *Term {
	return &Term{w: w, clear: clear, now: time.Now}
}

// Update redraws the panel for s.
func (t *Term) Update(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	t.drawLocked()
}

// ShowMessage pages msg in the footer for d.
func (t *Term) ShowMessage(msg string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.footer.show(msg, t.now(), d)
	t.drawLocked()
}

func (t *Term) drawLocked() {
	frame := Panel(t.status, t.footer.page(t.now()))
	if frame == t.last {
		return
	}
	t.last = frame

	if t.clear {
		io.WriteString(t.w, "\033[H\033[2J")
	}
	io.WriteString(t.w, frame+"\n")
}

// Panel renders one frame: mains and battery, ambient and door, then either
// the footer page or the active alert conditions.
func Panel(s Status, page string) string {
	mains := "OFF"
	if s.Volts > 0 {
		mains = fmt.Sprintf("%.0fV", s.Volts)
	}
	lines := []string{
		labelStyle.Render("AC ") + mains + "  " + labelStyle.Render("BAT ") + fmt.Sprintf("%.1fV", s.Battery),
	}

	ambient := "--.-C --%"
	if s.HasAmbient {
		ambient = fmt.Sprintf("%.1fC %.0f%%", roundTenth(s.Temperature), roundTenth(s.Humidity))
	}
	door := "FECHADA"
	if s.DoorOpen {
		door = alarmStyle.Render("ABERTA")
	}
	lines = append(lines, ambient+"  "+door)

	var flags []string
	if s.Maintenance {
		flags = append(flags, "MANUT")
	}
	if !s.Online {
		flags = append(flags, "OFFLINE")
	}
	if len(flags) > 0 {
		lines = append(lines, noticeStyle.Render(strings.Join(flags, " ")))
	}

	switch {
	case page != "":
		lines = append(lines, footerStyle.Render(page))
	case len(s.Active) > 0:
		lines = append(lines, alarmStyle.Render("! "+strings.Join(s.Active, ",")))
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
