package generator

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned once a Scripted completer has no replies left.
var ErrScriptExhausted = errors.New("scripted completer: no replies left")

// ScriptStep is one canned completion: either raw text or an error.
type ScriptStep struct {
	Text string
	Err  error
}

// Scripted is a deterministic Completer that plays back canned steps in
// order. It records every request it receives.
type Scripted struct {
	mu       sync.Mutex
	steps    []ScriptStep
	Requests []Request
}

// NewScripted returns a completer that answers with the given raw texts.
func NewScripted(texts ...string) *Scripted {
	s := &Scripted{}
	for _, t := range texts {
		s.steps = append(s.steps, ScriptStep{Text: t})
	}
	return s
}

// Push appends steps to the script.
func (s *Scripted) Push(steps ...ScriptStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

func (s *Scripted) Complete(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.steps) == 0 {
		return "", ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.Text, step.Err
}

// Calls reports how many requests were received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
