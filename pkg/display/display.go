// Package display renders appliance status. Log writes a status line to the
// log whenever what a panel would show changes; Term draws the panel itself
// on a terminal.
package display

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chewxy/math32"
)

const (
	// PageWidth is the number of characters shown per footer page.
	PageWidth = 18
	// PageInterval is how long each footer page stays up.
	PageInterval = 3 * time.Second
)

// Status is what the panel shows.
type Status struct {
	Volts       float64
	Battery     float64
	Temperature float32
	Humidity    float32
	HasAmbient  bool
	DoorOpen    bool
	Online      bool
	Maintenance bool
	Active      []string // Names of active alert conditions
}

// Display consumes status updates and transient footer messages.
type Display interface {
	Update(Status)
	ShowMessage(msg string, d time.Duration)
}

// Log renders to a slog.Logger. It is safe for concurrent use.
type Log struct {
	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	lastLine string
	lastPage string
	footer   footer
}

var (
	_ Display = (*Log)(nil)
	_ Display = (*Term)(nil)
)

// NewLog creates a log renderer.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger.With("component", "display"), now: time.Now}
}

// Update renders s, logging only when the status line or footer page changed.
func (l *Log) Update(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := StatusLine(s)
	if line != l.lastLine {
		l.lastLine = line
		l.log.Info("status", "line", line)
	}

	page := l.footer.page(l.now())
	if page != l.lastPage {
		l.lastPage = page
		if page != "" {
			l.log.Info("footer", "page", page)
		}
	}
}

// ShowMessage pages msg in the footer for d.
func (l *Log) ShowMessage(msg string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.footer.show(msg, l.now(), d)
	l.lastPage = ""
}

// Footer returns the footer page visible at now, or "" when no message is live.
func (l *Log) Footer(now time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.footer.page(now)
}

// footer pages a transient message, rotating every PageInterval until it
// expires.
type footer struct {
	pages     []string
	shownAt   time.Time
	expiresAt time.Time
}

func (f *footer) show(msg string, now time.Time, d time.Duration) {
	f.pages = Pages(msg, PageWidth)
	f.shownAt = now
	f.expiresAt = now.Add(d)
}

func (f *footer) page(now time.Time) string {
	if len(f.pages) == 0 || !now.Before(f.expiresAt) {
		return ""
	}
	i := int(now.Sub(f.shownAt)/PageInterval) % len(f.pages)
	return f.pages[i]
}

// Pages splits msg into pages of at most width characters, breaking at
// spaces where a word fits.
func Pages(msg string, width int) []string {
	words := strings.Fields(msg)
	if len(words) == 0 || width <= 0 {
		return nil
	}

	var pages []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			pages = append(pages, string(cur))
			cur = cur[:0]
		}
	}

	for _, w := range words {
		r := []rune(w)
		for len(r) > width {
			flush()
			pages = append(pages, string(r[:width]))
			r = r[width:]
		}
		need := len(r)
		if len(cur) > 0 {
			need++
		}
		if len(cur)+need > width {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, r...)
	}
	flush()
	return pages
}

// StatusLine formats the one-line status.
func StatusLine(s Status) string {
	var b strings.Builder

	if s.Volts > 0 {
		fmt.Fprintf(&b, "AC %3.0fV", s.Volts)
	} else {
		b.WriteString("AC  OFF")
	}
	fmt.Fprintf(&b, " BAT %4.1fV", s.Battery)

	if s.HasAmbient {
		fmt.Fprintf(&b, " %5.1fC %3.0f%%", roundTenth(s.Temperature), roundTenth(s.Humidity))
	} else {
		b.WriteString("   --.-C  --%")
	}

	if s.DoorOpen {
		b.WriteString(" PORTA")
	}
	if s.Maintenance {
		b.WriteString(" MANUT")
	}
	if !s.Online {
		b.WriteString(" OFFLINE")
	}
	if len(s.Active) > 0 {
		b.WriteString(" !")
		b.WriteString(strings.Join(s.Active, ","))
	}

	return b.String()
}

// roundTenth avoids "-0.0" and half-way flicker in the status line.
func roundTenth(v float32) float32 {
	r := math32.Floor(v*10+0.5) / 10
	if math32.Abs(r) < 0.05 {
		return 0
	}
	return r
}
