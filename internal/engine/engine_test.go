package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/pitcharena/internal/generator"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
	"github.com/apresai/pitcharena/internal/store"
)

type fixture struct {
	engine   *Engine
	store    *store.SQLite
	script   *generator.Scripted
	router   *generator.Router
	archive  *recordingArchiver
	persona  persona.Persona
	clockNow time.Time
}

type recordingArchiver struct {
	mu       sync.Mutex
	sessions []*pitch.Session
}

func (r *recordingArchiver) ArchiveTranscript(_ context.Context, s *pitch.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *recordingArchiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func reply(text string, delta int) string {
	return fmt.Sprintf(`{"reply_text":%q,"score_adjustment":%d,"feedback_hidden":"because"}`, text, delta)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = persona.Seed(ctx, db, time.Now())
	require.NoError(t, err)

	script := generator.NewScripted()
	router := generator.NewRouter(generator.RouterConfig{
		Default:        generator.BackendOpenAI,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
	}, logger)
	router.Register(generator.BackendOpenAI, script)

	f := &fixture{
		store:    db,
		script:   script,
		router:   router,
		archive:  &recordingArchiver{},
		persona:  persona.Defaults()[0],
		clockNow: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = New(db, db, router, logger, Options{
		GeneratorTimeout: 2 * time.Second,
		Archiver:         f.archive,
		Clock:            func() time.Time { return f.clockNow },
	})
	return f
}

func (f *fixture) start(t *testing.T) *pitch.Session {
	t.Helper()
	s, err := f.engine.CreateSession(context.Background(), "founder-1", f.persona.ID, "")
	require.NoError(t, err)
	return s
}

func (f *fixture) setScore(t *testing.T, id string, score int) {
	t.Helper()
	_, err := f.engine.PatchSession(context.Background(), id, pitch.Patch{Score: &score})
	require.NoError(t, err)
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)

	assert.Equal(t, 50, s.Score)
	assert.Equal(t, pitch.StatusActive, s.Status)
	assert.Equal(t, "openai", s.Backend)
	require.Len(t, s.Turns, 1)
	assert.Equal(t, f.persona.Greeting(), s.Turns[0].Text)
	assert.Equal(t, pitch.SpeakerInvestor, s.Turns[0].Speaker)

	stored, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Turns, stored.Turns)
}

func TestCreateSession_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateSession(ctx, "u", "no-such-persona", "")
	assert.ErrorIs(t, err, pitch.ErrPersonaNotFound)

	_, err = f.engine.CreateSession(ctx, "u", f.persona.ID, "gemini")
	assert.ErrorIs(t, err, pitch.ErrInvalidInput)
}

func TestScenarioA_DeltaClamped(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	f.script.Push(generator.ScriptStep{Text: reply("Now we're talking.", 60)})

	res, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "We have $2M ARR growing 20% MoM.", "")
	require.NoError(t, err)

	assert.Equal(t, 20, res.Turn.ScoreDelta)
	assert.Equal(t, 70, res.Score)
	assert.Equal(t, pitch.StatusActive, res.Status)

	stored, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, stored.Score)
	require.Len(t, stored.Turns, 3)
	assert.Equal(t, pitch.SpeakerUser, stored.Turns[1].Speaker)
	assert.Equal(t, "Now we're talking.", stored.Turns[2].Text)
	assert.Equal(t, "because", stored.Turns[2].Rationale)
}

func TestScenarioB_Lose(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	f.setScore(t, s.ID, 15)
	f.script.Push(generator.ScriptStep{Text: reply("Pass.", -20)})

	res, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "We have no customers yet.", "")
	require.NoError(t, err)

	assert.Equal(t, 0, res.Score)
	assert.Equal(t, pitch.StatusLost, res.Status)
	require.NotNil(t, res.Session.EndedAt)

	f.engine.Wait()
	assert.Equal(t, 1, f.archive.count())
}

func TestScenarioC_Win(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	f.setScore(t, s.ID, 95)
	f.script.Push(generator.ScriptStep{Text: reply("Where do I sign?", 10)})

	res, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "Term sheet from a16z already.", "")
	require.NoError(t, err)

	assert.Equal(t, 100, res.Score)
	assert.Equal(t, pitch.StatusWon, res.Status)

	stored, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, pitch.StatusWon, stored.Status)
	require.NotNil(t, stored.EndedAt)
}

func TestScenarioD_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, delta := range []int{20, 20, -20} {
		s := f.start(t)
		start := 85
		if delta < 0 {
			start = 15
		}
		f.setScore(t, s.ID, start)
		f.script.Push(generator.ScriptStep{Text: reply("...", delta)})
		_, err := f.engine.SubmitUserTurn(ctx, s.ID, "pitch", "")
		require.NoError(t, err)
	}
	f.start(t)

	st := f.engine.Stats(ctx, "founder-1")
	assert.Equal(t, 3, st.TotalSessions)
	assert.Equal(t, 2, st.Wins)
	assert.Equal(t, 1, st.Losses)
	assert.InDelta(t, 66.67, st.WinRate, 0.001)

	list := f.engine.ListSessions(ctx, "founder-1")
	assert.Len(t, list, 4)
	f.engine.Wait()
}

func TestScenarioE_MalformedOutput(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	f.script.Push(generator.ScriptStep{Text: "Honestly I have no idea what to score that."})

	res, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "We are Uber for dogs.", "")
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, 0, res.Turn.ScoreDelta)
	assert.Equal(t, pitch.UnparsedRationale, res.Turn.Rationale)
	assert.Equal(t, "Honestly I have no idea what to score that.", res.Turn.Text)
	assert.Equal(t, 50, res.Score)
	assert.Equal(t, pitch.StatusActive, res.Status)
}

func TestSubmitUserTurn_InvalidInput(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)

	_, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "  \t\n", "")
	assert.ErrorIs(t, err, pitch.ErrInvalidInput)
	assert.Zero(t, f.script.Calls())

	stored, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Turns, 1)
	assert.Equal(t, 0, stored.Version)
}

func TestSubmitUserTurn_TerminalRejected(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	f.setScore(t, s.ID, 10)
	f.script.Push(generator.ScriptStep{Text: reply("No.", -20)})
	_, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "pitch", "")
	require.NoError(t, err)

	before, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)

	_, err = f.engine.SubmitUserTurn(context.Background(), s.ID, "wait, one more thing", "")
	assert.ErrorIs(t, err, pitch.ErrSessionTerminal)

	after, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.script.Calls())
	f.engine.Wait()
}

func TestSubmitUserTurn_UnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SubmitUserTurn(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ", "hi", "")
	assert.ErrorIs(t, err, pitch.ErrNotFound)
}

func TestSubmitUserTurn_GeneratorUnavailableLeavesSession(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	for i := 0; i < 3; i++ {
		f.script.Push(generator.ScriptStep{Err: errors.New("dial tcp: connection refused")})
	}

	_, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "Our moat is data.", "")
	assert.ErrorIs(t, err, pitch.ErrGeneratorUnavailable)

	stored, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Turns, 1)
	assert.Equal(t, 50, stored.Score)
	assert.Equal(t, 0, stored.Version)
}

func TestSubmitUserTurn_Timeout(t *testing.T) {
	f := newFixture(t)
	f.engine.timeout = 20 * time.Millisecond
	f.router.Register(generator.BackendClaude, generator.CompleterFunc(func(ctx context.Context, _ generator.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
	s := f.start(t)

	_, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "hello", "claude")
	assert.ErrorIs(t, err, pitch.ErrGeneratorUnavailable)

	stored, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Turns, 1)
}

func TestSubmitUserTurn_ConcurrentWriteConflicts(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	f.router.Register(generator.BackendDeepSeek, generator.CompleterFunc(func(ctx context.Context, _ generator.Request) (string, error) {
		score := 42
		if _, err := f.store.UpdateSession(ctx, s.ID, pitch.Patch{Score: &score}); err != nil {
			return "", err
		}
		return reply("Interesting.", 5), nil
	}))

	_, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "pitch", "deepseek")
	assert.ErrorIs(t, err, pitch.ErrConflict)

	stored, err := f.engine.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, stored.Score)
	assert.Len(t, stored.Turns, 1)
}

func TestSubmitUserTurn_BackendPerCall(t *testing.T) {
	f := newFixture(t)
	other := generator.NewScripted(reply("from deepseek", 3))
	f.router.Register(generator.BackendDeepSeek, other)
	s := f.start(t)

	res, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "pitch", "deepseek")
	require.NoError(t, err)
	assert.Equal(t, "from deepseek", res.Turn.Text)
	assert.Equal(t, "deepseek", res.Session.Backend)
	assert.Equal(t, 1, other.Calls())
	assert.Zero(t, f.script.Calls())
}

func TestSubmitUserTurn_PromptCarriesHistoryAndScore(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	f.script.Push(generator.ScriptStep{Text: reply("Go on.", 4)}, generator.ScriptStep{Text: reply("More.", 1)})

	ctx := context.Background()
	_, err := f.engine.SubmitUserTurn(ctx, s.ID, "first", "")
	require.NoError(t, err)
	_, err = f.engine.SubmitUserTurn(ctx, s.ID, "second", "")
	require.NoError(t, err)

	require.Len(t, f.script.Requests, 2)
	last := f.script.Requests[1]
	assert.Contains(t, last.System, "CURRENT FUNDING PROBABILITY: 54%")
	require.Len(t, last.Messages, 4)
	assert.Equal(t, generator.RoleAssistant, last.Messages[0].Role)
	assert.Equal(t, "second", last.Messages[3].Content)
}

func TestScoreInvariantOverRandomishDeltas(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	deltas := []int{19, -40, 7, 33, -2, 0, 15, -18, 25, 20}
	for _, d := range deltas {
		f.script.Push(generator.ScriptStep{Text: reply("hm", d)})
	}

	for range deltas {
		res, err := f.engine.SubmitUserTurn(context.Background(), s.ID, "pitch", "")
		if errors.Is(err, pitch.ErrSessionTerminal) {
			break
		}
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Score, 0)
		assert.LessOrEqual(t, res.Score, 100)
		assert.LessOrEqual(t, res.Turn.ScoreDelta, 20)
		assert.GreaterOrEqual(t, res.Turn.ScoreDelta, -20)
	}
	f.engine.Wait()
}

type brokenStore struct {
	store.SessionStore
}

func (brokenStore) ListSessions(context.Context, string) ([]pitch.Session, error) {
	return nil, fmt.Errorf("%w: disk on fire", pitch.ErrPersistence)
}

func (brokenStore) SessionStats(context.Context, string) (pitch.Stats, error) {
	return pitch.Stats{}, fmt.Errorf("%w: disk on fire", pitch.ErrPersistence)
}

func TestReadPathsDegrade(t *testing.T) {
	f := newFixture(t)
	e := New(brokenStore{f.store}, f.store, f.router, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})

	assert.Empty(t, e.ListSessions(context.Background(), "founder-1"))
	assert.NotNil(t, e.ListSessions(context.Background(), "founder-1"))
	assert.Equal(t, pitch.Stats{}, e.Stats(context.Background(), "founder-1"))
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	ctx := context.Background()

	require.NoError(t, f.engine.DeleteSession(ctx, s.ID))
	_, err := f.engine.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, pitch.ErrNotFound)
}

func TestChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.script.Push(generator.ScriptStep{Text: reply("Tell me about churn.", 45)})

	got, err := f.engine.Chat(ctx, ChatRequest{
		PersonaID:    f.persona.ID,
		CurrentScore: 50,
		Messages: []ChatMessage{
			{Role: "investor", Content: "Welcome!"},
			{Role: "user", Content: "We sell shovels."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tell me about churn.", got.Content)
	assert.Equal(t, 20, got.ProbabilityChange)
	assert.Equal(t, "because", got.FeedbackHidden)

	req := f.script.Requests[0]
	assert.Equal(t, generator.RoleAssistant, req.Messages[0].Role)

	_, err = f.engine.Chat(ctx, ChatRequest{PersonaID: f.persona.ID})
	assert.ErrorIs(t, err, pitch.ErrInvalidInput)

	_, err = f.engine.Chat(ctx, ChatRequest{PersonaID: f.persona.ID, Messages: []ChatMessage{{Role: "system", Content: "x"}}})
	assert.ErrorIs(t, err, pitch.ErrInvalidInput)

	_, err = f.engine.Chat(ctx, ChatRequest{PersonaID: "missing", Messages: []ChatMessage{{Role: "user", Content: "x"}}})
	assert.ErrorIs(t, err, pitch.ErrPersonaNotFound)
}
