package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/apresai/pitcharena/internal/pitch"
	"github.com/apresai/pitcharena/internal/prompt"
)

// ChatMessage is a client-held transcript entry. Role is "user", "investor"
// or "assistant".
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a stateless round trip: the client owns the transcript and
// the running score.
type ChatRequest struct {
	PersonaID    string
	Backend      string
	Messages     []ChatMessage
	CurrentScore int
}

// ChatReply mirrors the reference client's response shape.
type ChatReply struct {
	Content           string `json:"content"`
	ProbabilityChange int    `json:"probabilityChange"`
	FeedbackHidden    string `json:"feedbackHidden"`
	Degraded          bool   `json:"degraded,omitempty"`
}

// Chat produces one investor reply without touching any stored session. The
// returned change is clamped to the per-turn bound; the caller's score is not
// authoritative and nothing is persisted.
func (e *Engine) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages array is required", pitch.ErrInvalidInput)
	}
	turns := make([]pitch.Turn, 0, len(req.Messages))
	for i, m := range req.Messages {
		var sp pitch.Speaker
		switch strings.ToLower(m.Role) {
		case "investor", "assistant":
			sp = pitch.SpeakerInvestor
		case "user":
			sp = pitch.SpeakerUser
		default:
			return nil, fmt.Errorf("%w: message %d has unknown role %q", pitch.ErrInvalidInput, i, m.Role)
		}
		turns = append(turns, pitch.Turn{Speaker: sp, Text: m.Content})
	}

	b, err := e.gen.Resolve(req.Backend)
	if err != nil {
		return nil, err
	}
	p, err := e.personas.GetPersona(ctx, req.PersonaID)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	reply, err := e.gen.Generate(genCtx, prompt.Build(p, turns, pitch.ClampScore(req.CurrentScore)), b)
	if err != nil {
		e.logger.WarnContext(ctx, "stateless chat generator failure", "backend", b, "error", err)
		return nil, err
	}
	return &ChatReply{
		Content:           reply.Text,
		ProbabilityChange: pitch.ClampDelta(reply.ScoreDelta),
		FeedbackHidden:    reply.Rationale,
		Degraded:          reply.Degraded,
	}, nil
}
