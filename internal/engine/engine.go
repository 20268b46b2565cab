// Package engine runs pitch sessions: it creates them, applies founder turns
// through the response generator and persists each round atomically.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/pitcharena/internal/generator"
	"github.com/apresai/pitcharena/internal/observability"
	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
	"github.com/apresai/pitcharena/internal/prompt"
	"github.com/apresai/pitcharena/internal/store"
)

// DefaultGeneratorTimeout bounds a single generator call including retries.
const DefaultGeneratorTimeout = 30 * time.Second

// Generator is the response generator capability the engine depends on.
type Generator interface {
	Resolve(name string) (generator.Backend, error)
	Generate(ctx context.Context, req generator.Request, backend generator.Backend) (generator.Reply, error)
}

// Archiver stores finished transcripts somewhere durable.
type Archiver interface {
	ArchiveTranscript(ctx context.Context, s *pitch.Session) error
}

// Options holds the optional collaborators.
type Options struct {
	GeneratorTimeout time.Duration
	Archiver         Archiver
	Metrics          *observability.Metrics
	Clock            func() time.Time
}

// Engine owns the session lifecycle. It holds no per-session state; every
// call reads from and writes to the store.
type Engine struct {
	sessions store.SessionStore
	personas persona.Reader
	gen      Generator
	archive  Archiver
	metrics  *observability.Metrics
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time

	wg sync.WaitGroup
}

// New creates an engine.
func New(sessions store.SessionStore, personas persona.Reader, gen Generator, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GeneratorTimeout <= 0 {
		opts.GeneratorTimeout = DefaultGeneratorTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		sessions: sessions,
		personas: personas,
		gen:      gen,
		archive:  opts.Archiver,
		metrics:  opts.Metrics,
		logger:   logger,
		timeout:  opts.GeneratorTimeout,
		now:      opts.Clock,
	}
}

// Wait blocks until background archive uploads have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// TurnResult is the outcome of one founder turn.
type TurnResult struct {
	Turn     pitch.Turn     `json:"turn"`
	Status   pitch.Status   `json:"status"`
	Score    int            `json:"score"`
	Degraded bool           `json:"degraded,omitempty"`
	Session  *pitch.Session `json:"-"`
}

func tracer() trace.Tracer {
	return otel.Tracer("pitcharena")
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// CreateSession starts a session against a persona. The persona's greeting is
// the first turn and has no scoring effect.
func (e *Engine) CreateSession(ctx context.Context, userID, personaID, backend string) (*pitch.Session, error) {
	ctx, span := tracer().Start(ctx, "engine.create")
	defer span.End()
	span.SetAttributes(attribute.String("persona_id", personaID))

	b, err := e.gen.Resolve(backend)
	if err != nil {
		return nil, fail(span, err)
	}
	p, err := e.personas.GetPersona(ctx, personaID)
	if err != nil {
		return nil, fail(span, err)
	}
	id, err := pitch.NewSessionID()
	if err != nil {
		return nil, fail(span, err)
	}

	s := pitch.NewSession(id, userID, p.ID, string(b), p.Greeting(), e.now())
	if err := e.sessions.CreateSession(ctx, s); err != nil {
		return nil, fail(span, fmt.Errorf("create session: %w", err))
	}
	span.SetAttributes(attribute.String("session_id", id))
	e.metrics.RecordSessionStarted()
	e.logger.InfoContext(ctx, "session created",
		"session_id", id,
		"user_id", userID,
		"persona_id", p.ID,
		"backend", b,
	)
	return s, nil
}

// SubmitUserTurn appends the founder's message, asks the generator for the
// investor's reply and persists the round. On any error the stored session is
// unchanged. A concurrent writer yields pitch.ErrConflict.
func (e *Engine) SubmitUserTurn(ctx context.Context, sessionID, text, backend string) (*TurnResult, error) {
	ctx, span := tracer().Start(ctx, "engine.turn")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	text, err := pitch.NormalizeUserText(text)
	if err != nil {
		return nil, fail(span, err)
	}

	loaded, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fail(span, err)
	}
	if err := loaded.CheckAccepting(); err != nil {
		return nil, fail(span, err)
	}

	if backend == "" {
		backend = loaded.Backend
	}
	b, err := e.gen.Resolve(backend)
	if err != nil {
		return nil, fail(span, err)
	}
	p, err := e.personas.GetPersona(ctx, loaded.PersonaID)
	if err != nil {
		return nil, fail(span, err)
	}

	staged := loaded.Clone()
	if err := staged.AppendUserTurn(text, e.now()); err != nil {
		return nil, fail(span, err)
	}
	req := prompt.Build(p, staged.Turns, staged.Score)

	genCtx, cancel := context.WithTimeout(ctx, e.timeout)
	reply, err := e.gen.Generate(genCtx, req, b)
	cancel()
	if err != nil {
		if !errors.Is(err, pitch.ErrGeneratorUnavailable) && !errors.Is(err, pitch.ErrInvalidInput) {
			err = fmt.Errorf("%w: %w", pitch.ErrGeneratorUnavailable, err)
		}
		e.logger.WarnContext(ctx, "generator unavailable, session left unchanged",
			"session_id", sessionID, "backend", b, "error", err)
		return nil, fail(span, err)
	}

	turn, err := staged.ApplyReply(reply.Text, reply.ScoreDelta, reply.Rationale, e.now())
	if err != nil {
		return nil, fail(span, err)
	}
	staged.Backend = string(b)

	saved, err := e.sessions.UpdateSession(ctx, sessionID, pitch.RoundPatch(staged, loaded.Version))
	if err != nil {
		return nil, fail(span, fmt.Errorf("persist round: %w", err))
	}

	outcome := "parsed"
	if reply.Degraded {
		outcome = "degraded"
	}
	e.metrics.RecordTurn(string(b), outcome)
	span.SetAttributes(
		attribute.Int("score", saved.Score),
		attribute.Int("delta", turn.ScoreDelta),
		attribute.String("status", string(saved.Status)),
	)
	e.logger.InfoContext(ctx, "turn applied",
		"session_id", sessionID,
		"backend", b,
		"delta", turn.ScoreDelta,
		"score", saved.Score,
		"status", saved.Status,
		"degraded", reply.Degraded,
	)
	e.logger.DebugContext(ctx, "turn rationale", "session_id", sessionID, "rationale", turn.Rationale)

	if saved.Status.Terminal() {
		e.finish(ctx, saved)
	}

	return &TurnResult{
		Turn:     turn,
		Status:   saved.Status,
		Score:    saved.Score,
		Degraded: reply.Degraded,
		Session:  saved,
	}, nil
}

func (e *Engine) finish(ctx context.Context, s *pitch.Session) {
	e.metrics.RecordSessionFinished(string(s.Status))
	e.logger.InfoContext(ctx, "session finished", "session_id", s.ID, "status", s.Status, "turns", len(s.Turns))
	if e.archive == nil {
		return
	}
	bgCtx := observability.DetachTraceContext(ctx)
	snapshot := s.Clone()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		actx, cancel := context.WithTimeout(bgCtx, 30*time.Second)
		defer cancel()
		if err := e.archive.ArchiveTranscript(actx, snapshot); err != nil {
			e.logger.WarnContext(actx, "transcript archive failed", "session_id", snapshot.ID, "error", err)
		}
	}()
}

// GetSession returns a session. Persistence failures are surfaced.
func (e *Engine) GetSession(ctx context.Context, id string) (*pitch.Session, error) {
	return e.sessions.GetSession(ctx, id)
}

// ListSessions returns a user's sessions newest first. Persistence failures
// degrade to an empty list.
func (e *Engine) ListSessions(ctx context.Context, userID string) []pitch.Session {
	sessions, err := e.sessions.ListSessions(ctx, userID)
	if err != nil {
		e.logger.ErrorContext(ctx, "list sessions failed", "user_id", userID, "error", err)
		return []pitch.Session{}
	}
	if sessions == nil {
		sessions = []pitch.Session{}
	}
	return sessions
}

// DeleteSession removes a session.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	if err := e.sessions.DeleteSession(ctx, id); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "session deleted", "session_id", id)
	return nil
}

// PatchSession applies an administrative override. Only the set fields change.
func (e *Engine) PatchSession(ctx context.Context, id string, p pitch.Patch) (*pitch.Session, error) {
	s, err := e.sessions.UpdateSession(ctx, id, p)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "session patched", "session_id", id, "status", s.Status, "score", s.Score)
	return s, nil
}

// Stats aggregates a user's finished sessions. Persistence failures degrade
// to zero stats.
func (e *Engine) Stats(ctx context.Context, userID string) pitch.Stats {
	st, err := e.sessions.SessionStats(ctx, userID)
	if err != nil {
		e.logger.ErrorContext(ctx, "session stats failed", "user_id", userID, "error", err)
		return pitch.Stats{}
	}
	return st
}
