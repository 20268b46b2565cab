package scoreboard

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/apresai/pitcharena/internal/pitch"
)

func TestBar(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "[..........]"},
		{50, "[#####.....]"},
		{100, "[##########]"},
		{140, "[##########]"},
		{-3, "[..........]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bar(tt.score, 10), "score %d", tt.score)
	}
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "+20", FormatDelta(20))
	assert.Equal(t, "0", FormatDelta(0))
	assert.Equal(t, "-7", FormatDelta(-7))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00", formatElapsed(0))
	assert.Equal(t, "1:05", formatElapsed(65*time.Second))
	assert.Equal(t, "12:00", formatElapsed(12*time.Minute))
}

func TestPlainBoard(t *testing.T) {
	var buf bytes.Buffer
	b := NewPlain(&buf)

	b.Render(Event{Persona: "Marc Chen", Round: 1, Score: 62, Delta: 12, Status: pitch.StatusActive})
	b.Render(Event{Persona: "Marc Chen", Round: 2, Score: 100, Delta: 38, Status: pitch.StatusWon})
	b.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Contains(t, lines[0], "round 1: Marc Chen 62% (+12)")
	assert.Contains(t, buf.String(), "Marc Chen is in.")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestFinishLost(t *testing.T) {
	var buf bytes.Buffer
	b := NewPlain(&buf)
	b.Render(Event{Persona: "Sarah Williams", Round: 4, Score: 0, Delta: -20, Status: pitch.StatusLost})
	b.Finish()
	assert.Contains(t, buf.String(), "Sarah Williams passed.")
}
