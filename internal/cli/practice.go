package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/apresai/pitcharena/internal/engine"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
	"github.com/apresai/pitcharena/internal/scoreboard"
)

var (
	flagPersona string
	flagPlain   bool
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Pitch to an investor persona in the terminal",
	RunE:  runPractice,
}

func init() {
	practiceCmd.Flags().StringVarP(&flagPersona, "persona", "P", "", "Persona id or name (picker when omitted on a TTY)")
	practiceCmd.Flags().BoolVar(&flagPlain, "plain", false, "Line mode even on a TTY")
}

func runPractice(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.Personas.ListPersonas(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return errors.New("no personas in the store: run `pitcharena personas seed` first")
	}

	tty := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
	if tty && !flagPlain {
		var preselect *persona.Persona
		if flagPersona != "" {
			if preselect, err = findPersona(list, flagPersona); err != nil {
				return err
			}
		}
		return runPracticeTUI(ctx, a.Engine, list, preselect, flagUser, flagBackend)
	}

	p := &list[0]
	if flagPersona != "" {
		if p, err = findPersona(list, flagPersona); err != nil {
			return err
		}
	}
	return practiceLines(ctx, a.Engine, p, flagUser, flagBackend, os.Stdin, os.Stdout)
}

// findPersona matches an id exactly or a name case-insensitively by prefix.
func findPersona(list []persona.Persona, query string) (*persona.Persona, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	for i := range list {
		if list[i].ID == query {
			return &list[i], nil
		}
	}
	var hits []*persona.Persona
	for i := range list {
		if strings.HasPrefix(strings.ToLower(list[i].Name), q) {
			hits = append(hits, &list[i])
		}
	}
	switch len(hits) {
	case 0:
		return nil, fmt.Errorf("%w: no persona matches %q", pitch.ErrPersonaNotFound, query)
	case 1:
		return hits[0], nil
	}
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.Name
	}
	return nil, fmt.Errorf("%w: %q matches %s", pitch.ErrInvalidInput, query, strings.Join(names, ", "))
}

// practiceLines runs a session in line mode: one founder message per line,
// "/quit" to stop.
func practiceLines(ctx context.Context, eng *engine.Engine, p *persona.Persona, userID, backend string, in io.Reader, out io.Writer) error {
	s, err := eng.CreateSession(ctx, userID, p.ID, backend)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s with %s (%s)\n\n", s.ID, p.Name, p.Role)
	fmt.Fprintf(out, "%s: %s\n\n", p.Name, s.Turns[0].Text)

	board := scoreboard.NewPlain(out)
	if f, ok := out.(*os.File); ok {
		board = scoreboard.New(f)
	}

	scanner := bufio.NewScanner(in)
	round := 0
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "/quit" {
			board.Finish()
			return nil
		}

		res, err := eng.SubmitUserTurn(ctx, s.ID, line, backend)
		switch {
		case errors.Is(err, pitch.ErrInvalidInput):
			continue
		case errors.Is(err, pitch.ErrGeneratorUnavailable):
			fmt.Fprintf(out, "\n[fallback] %s\n\n", pitch.ApologyText)
			continue
		case err != nil:
			return err
		}

		round++
		board.Clear()
		fmt.Fprintf(out, "\n%s: %s\n\n", p.Name, res.Turn.Text)
		board.Render(scoreboard.Event{
			Persona: p.Name,
			Round:   round,
			Score:   res.Score,
			Delta:   res.Turn.ScoreDelta,
			Status:  res.Status,
		})
		if res.Status.Terminal() {
			board.Finish()
			return nil
		}
		fmt.Fprintln(out)
	}
}
