// Package scoreboard prints the funding probability as a pitch progresses.
package scoreboard

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"

	"github.com/apresai/pitcharena/internal/pitch"
)

// Event is one scored round.
type Event struct {
	Persona string
	Round   int
	Score   int
	Delta   int
	Status  pitch.Status
}

// Board draws a score bar that redraws in place on a TTY, or prints one
// timestamped line per round otherwise.
type Board struct {
	out   io.Writer
	start time.Time
	isTTY bool
	width int
	drawn bool
	last  Event
}

// New creates a board on out, detecting TTY mode and terminal width.
func New(out *os.File) *Board {
	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())

	width := 80
	if tty {
		if w, _, err := term.GetSize(out.Fd()); err == nil && w > 0 {
			width = w
		}
	}
	return &Board{out: out, start: time.Now(), isTTY: tty, width: width, last: Event{Score: pitch.StartingScore}}
}

// NewPlain creates a non-TTY board, used when output is piped.
func NewPlain(out io.Writer) *Board {
	return &Board{out: out, start: time.Now(), width: 80, last: Event{Score: pitch.StartingScore}}
}

// Render draws the state after a round.
func (b *Board) Render(e Event) {
	b.last = e
	elapsed := time.Since(b.start)
	if !b.isTTY {
		fmt.Fprintf(b.out, "[%s] round %d: %s %d%% (%s)\n",
			formatElapsed(elapsed), e.Round, e.Persona, e.Score, FormatDelta(e.Delta))
		return
	}
	if b.drawn {
		fmt.Fprint(b.out, "\r\033[2K")
	}
	fmt.Fprintf(b.out, "  %s %s %3d%%  %-5s %s",
		e.Persona, Bar(e.Score, b.barWidth(len(e.Persona))), e.Score, FormatDelta(e.Delta), formatElapsed(elapsed))
	b.drawn = true
}

// Clear removes the in-place bar so other output can follow.
func (b *Board) Clear() {
	if b.isTTY && b.drawn {
		fmt.Fprint(b.out, "\r\033[2K")
		b.drawn = false
	}
}

// Finish prints the closing line for a terminal session.
func (b *Board) Finish() {
	b.Clear()
	e := b.last
	switch e.Status {
	case pitch.StatusWon:
		fmt.Fprintf(b.out, "\n  %s is in. Funding probability hit %d%% after %d rounds (%s).\n",
			e.Persona, e.Score, e.Round, formatElapsed(time.Since(b.start)))
	case pitch.StatusLost:
		fmt.Fprintf(b.out, "\n  %s passed. Funding probability fell to %d%% after %d rounds (%s).\n",
			e.Persona, e.Score, e.Round, formatElapsed(time.Since(b.start)))
	default:
		fmt.Fprintf(b.out, "\n  Pitch paused at %d%%.\n", e.Score)
	}
}

// FormatDelta renders a signed score change, e.g. "+12" or "-5".
func FormatDelta(d int) string {
	if d > 0 {
		return fmt.Sprintf("+%d", d)
	}
	return fmt.Sprintf("%d", d)
}

// barWidth leaves room for the name, percent, delta and clock.
func (b *Board) barWidth(nameLen int) int {
	w := b.width - nameLen - 22
	if w < 10 {
		w = 10
	}
	if w > 50 {
		w = 50
	}
	return w
}

// Bar draws a [####....] meter for a score in [0,100].
func Bar(score, width int) string {
	score = pitch.ClampScore(score)
	filled := score * width / pitch.MaxScore
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// formatElapsed formats a duration as M:SS.
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
