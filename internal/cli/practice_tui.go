package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apresai/pitcharena/internal/engine"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
	"github.com/apresai/pitcharena/internal/scoreboard"
)

type practiceState int

const (
	statePick practiceState = iota
	stateChat
	stateWaiting
	stateDone
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Italic(true)

	investorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	founderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	scoreLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	scoreMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F1C40F"))
	scoreHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
)

type chatLine struct {
	investor bool
	text     string
	delta    int
	fallback bool
}

type sessionStartedMsg struct {
	session *pitch.Session
	err     error
}

type turnDoneMsg struct {
	result *engine.TurnResult
	err    error
}

// practiceModel is the Bubble Tea model for a pitch session: a persona
// picker followed by the chat view.
type practiceModel struct {
	ctx      context.Context
	eng      *engine.Engine
	userID   string
	backend  string
	personas []persona.Persona
	cursor   int

	state   practiceState
	persona *persona.Persona
	session *pitch.Session
	lines   []chatLine
	input   string
	score   int
	status  pitch.Status
	err     error
	width   int
	height  int
}

func newPracticeModel(ctx context.Context, eng *engine.Engine, list []persona.Persona, preselect *persona.Persona, userID, backend string) practiceModel {
	m := practiceModel{
		ctx:      ctx,
		eng:      eng,
		userID:   userID,
		backend:  backend,
		personas: list,
		score:    pitch.StartingScore,
		status:   pitch.StatusActive,
		width:    80,
		height:   24,
	}
	if preselect != nil {
		m.persona = preselect
		m.state = stateWaiting
	}
	return m
}

func (m practiceModel) Init() tea.Cmd {
	if m.persona != nil {
		return m.startSession()
	}
	return nil
}

func (m practiceModel) startSession() tea.Cmd {
	ctx, eng, userID, personaID, backend := m.ctx, m.eng, m.userID, m.persona.ID, m.backend
	return func() tea.Msg {
		s, err := eng.CreateSession(ctx, userID, personaID, backend)
		return sessionStartedMsg{session: s, err: err}
	}
}

func (m practiceModel) submit(text string) tea.Cmd {
	ctx, eng, id, backend := m.ctx, m.eng, m.session.ID, m.backend
	return func() tea.Msg {
		res, err := eng.SubmitUserTurn(ctx, id, text, backend)
		return turnDoneMsg{result: res, err: err}
	}
}

func (m practiceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case sessionStartedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateDone
			return m, nil
		}
		m.session = msg.session
		m.state = stateChat
		m.lines = append(m.lines, chatLine{investor: true, text: msg.session.Turns[0].Text})
		return m, nil

	case turnDoneMsg:
		return m.applyTurn(msg), nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.state {
		case statePick:
			return m.updatePick(msg)
		case stateChat:
			return m.updateChat(msg)
		case stateDone:
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m practiceModel) applyTurn(msg turnDoneMsg) practiceModel {
	m.state = stateChat
	switch {
	case errors.Is(msg.err, pitch.ErrGeneratorUnavailable):
		m.lines = append(m.lines, chatLine{investor: true, text: pitch.ApologyText, fallback: true})
		return m
	case msg.err != nil:
		m.err = msg.err
		return m
	}
	res := msg.result
	m.err = nil
	m.score = res.Score
	m.status = res.Status
	m.lines = append(m.lines, chatLine{investor: true, text: res.Turn.Text, delta: res.Turn.ScoreDelta})
	if res.Status.Terminal() {
		m.state = stateDone
	}
	return m
}

func (m practiceModel) updatePick(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.personas)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.persona = &m.personas[m.cursor]
		m.state = stateWaiting
		return m, m.startSession()
	}
	return m, nil
}

func (m practiceModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "enter":
		text := strings.TrimSpace(m.input)
		if text == "" {
			return m, nil
		}
		m.input = ""
		m.err = nil
		m.lines = append(m.lines, chatLine{text: text})
		m.state = stateWaiting
		return m, m.submit(text)
	case "backspace":
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case "ctrl+u":
		m.input = ""
	default:
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			m.input += string(msg.Runes)
		}
	}
	return m, nil
}

func scoreStyle(score int) lipgloss.Style {
	switch {
	case score < 30:
		return scoreLow
	case score > 70:
		return scoreHigh
	}
	return scoreMid
}

func (m practiceModel) View() string {
	var b strings.Builder

	if m.state == statePick {
		b.WriteString(headerBorder.Render(titleStyle.Render("Pitch Arena")) + "\n\n")
		b.WriteString("  Choose your investor:\n\n")
		for i, p := range m.personas {
			prefix := "  "
			if i == m.cursor {
				prefix = cursorStyle.Render("> ")
			}
			b.WriteString(fmt.Sprintf("  %s%s  %s\n", prefix, p.Name, dimStyle.Render(p.Role+", "+p.Region)))
		}
		b.WriteString("\n" + helpStyle.Render("  j/k or arrows to navigate | enter to pitch | q to quit") + "\n")
		return b.String()
	}

	name := ""
	if m.persona != nil {
		name = m.persona.Name
	}
	barWidth := m.width - len(name) - 30
	if barWidth < 10 {
		barWidth = 10
	}
	if barWidth > 50 {
		barWidth = 50
	}
	header := fmt.Sprintf("%s  %s %s", titleStyle.Render("Pitch Arena"), name,
		scoreStyle(m.score).Render(fmt.Sprintf("%s %3d%%", scoreboard.Bar(m.score, barWidth), m.score)))
	b.WriteString(headerBorder.Render(header) + "\n")

	wrap := lipgloss.NewStyle().Width(max(m.width-4, 20))
	for _, l := range m.visibleLines() {
		switch {
		case l.fallback:
			b.WriteString(wrap.Render(dimStyle.Render("[fallback] "+l.text)) + "\n\n")
		case l.investor:
			label := investorStyle.Render(name + ":")
			if l.delta != 0 {
				label += dimStyle.Render(" (" + scoreboard.FormatDelta(l.delta) + ")")
			}
			b.WriteString(wrap.Render(label+" "+l.text) + "\n\n")
		default:
			b.WriteString(wrap.Render(founderStyle.Render("You:")+" "+l.text) + "\n\n")
		}
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}

	switch m.state {
	case stateWaiting:
		b.WriteString(dimStyle.Render("  ...") + "\n")
	case stateChat:
		b.WriteString(cursorStyle.Render("> ") + m.input + "_\n")
		b.WriteString(helpStyle.Render("  enter to send | ctrl+u to clear | esc to leave"))
	case stateDone:
		switch m.status {
		case pitch.StatusWon:
			b.WriteString(scoreHigh.Render(fmt.Sprintf("  %s is in. You closed the round at %d%%.", name, m.score)) + "\n")
		case pitch.StatusLost:
			b.WriteString(scoreLow.Render(fmt.Sprintf("  %s passed. Funding probability hit %d%%.", name, m.score)) + "\n")
		}
		b.WriteString(helpStyle.Render("  press any key to exit"))
	}
	b.WriteString("\n")
	return b.String()
}

// visibleLines keeps the newest lines that roughly fit the window.
func (m practiceModel) visibleLines() []chatLine {
	room := m.height - 8
	if room < 4 {
		room = 4
	}
	lineWidth := max(m.width-4, 20)
	used := 0
	start := len(m.lines)
	for start > 0 {
		l := m.lines[start-1]
		rows := len(l.text)/lineWidth + 2
		if used+rows > room && start < len(m.lines) {
			break
		}
		used += rows
		start--
	}
	return m.lines[start:]
}

func runPracticeTUI(ctx context.Context, eng *engine.Engine, list []persona.Persona, preselect *persona.Persona, userID, backend string) error {
	m := newPracticeModel(ctx, eng, list, preselect, userID, backend)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(practiceModel)
	if final.session != nil {
		fmt.Printf("Session %s ended %s at %d%%.\n", final.session.ID, final.status, final.score)
	}
	return final.err
}
