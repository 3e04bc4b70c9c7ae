package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPanel(t *testing.T) {
	p := Panel(Status{
		Volts: 221.4, Battery: 12.66,
		Temperature: 3.46, Humidity: 70.2, HasAmbient: true,
		Online: true,
	}, "")
	assert.Contains(t, p, "221V")
	assert.Contains(t, p, "12.7V")
	assert.Contains(t, p, "3.5C 70%")
	assert.Contains(t, p, "FECHADA")
	assert.NotContains(t, p, "OFFLINE")

	p = Panel(Status{DoorOpen: true, Active: []string{"porta"}}, "")
	assert.Contains(t, p, "OFF")
	assert.Contains(t, p, "--.-C")
	assert.Contains(t, p, "ABERTA")
	assert.Contains(t, p, "OFFLINE")
	assert.Contains(t, p, "! porta")

	// A live footer page replaces the alert list.
	p = Panel(Status{Online: true, Active: []string{"porta"}}, "Porta aberta")
	assert.Contains(t, p, "Porta aberta")
	assert.NotContains(t, p, "! porta")
}

func TestTerm_DrawsOnChange(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	term := NewTerm(&buf, false)
	term.now = func() time.Time { return now }

	s := Status{Volts: 220, Battery: 12.6, Online: true}
	term.Update(s)
	first := buf.Len()
	assert.Positive(t, first)

	term.Update(s)
	assert.Equal(t, first, buf.Len(), "unchanged frame is not redrawn")

	term.ShowMessage("Falta de energia detectada no local", 10*time.Second)
	assert.Contains(t, buf.String(), "Falta de energia")

	now = now.Add(PageInterval)
	term.Update(s)
	assert.Contains(t, buf.String(), "detectada no local")

	now = now.Add(10 * time.Second)
	before := buf.Len()
	term.Update(s)
	last := buf.String()[before:]
	assert.NotContains(t, last, "detectada")
}

func TestTerm_Clear(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerm(&buf, true)
	term.Update(Status{Volts: 220})
	assert.True(t, strings.HasPrefix(buf.String(), "\033[H\033[2J"))
}
