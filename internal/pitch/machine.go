package pitch

import (
	"fmt"
	"strings"
	"time"
)

// ClampDelta bounds a generator-proposed adjustment to [-MaxDelta, MaxDelta].
func ClampDelta(d int) int {
	if d > MaxDelta {
		return MaxDelta
	}
	if d < -MaxDelta {
		return -MaxDelta
	}
	return d
}

// ClampScore bounds a score to [MinScore, MaxScore].
func ClampScore(v int) int {
	if v > MaxScore {
		return MaxScore
	}
	if v < MinScore {
		return MinScore
	}
	return v
}

// NormalizeUserText trims the text and rejects it when nothing is left.
func NormalizeUserText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: message text is empty", ErrInvalidInput)
	}
	return text, nil
}

// CheckAccepting returns ErrSessionTerminal once the session is won or lost.
func (s *Session) CheckAccepting() error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: session %s is %s", ErrSessionTerminal, s.ID, s.Status)
	}
	return nil
}

// AppendUserTurn records the founder's message. The text must already be normalized.
func (s *Session) AppendUserTurn(text string, now time.Time) error {
	if err := s.CheckAccepting(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: message text is empty", ErrInvalidInput)
	}
	s.Turns = append(s.Turns, Turn{
		Speaker:   SpeakerUser,
		Text:      text,
		Timestamp: now.UTC(),
	})
	return nil
}

// ApplyReply clamps the proposed delta, moves the score, appends the investor
// turn and then decides termination from the post-update score only. The turn
// records the clamped delta, never the raw one.
func (s *Session) ApplyReply(text string, rawDelta int, rationale string, now time.Time) (Turn, error) {
	if err := s.CheckAccepting(); err != nil {
		return Turn{}, err
	}
	now = now.UTC()
	delta := ClampDelta(rawDelta)
	turn := Turn{
		Speaker:    SpeakerInvestor,
		Text:       text,
		Timestamp:  now,
		ScoreDelta: delta,
		Rationale:  rationale,
	}
	s.Turns = append(s.Turns, turn)
	s.Score = ClampScore(s.Score + delta)

	switch {
	case s.Score >= MaxScore:
		s.finish(StatusWon, now)
	case s.Score <= MinScore:
		s.finish(StatusLost, now)
	}
	return turn, nil
}

func (s *Session) finish(status Status, now time.Time) {
	s.Status = status
	s.EndedAt = &now
}

// UserTurns counts the founder's messages.
func (s *Session) UserTurns() int {
	n := 0
	for _, t := range s.Turns {
		if t.Speaker == SpeakerUser {
			n++
		}
	}
	return n
}

// Patch is a partial update. Nil fields are left untouched. IfVersion and
// IfActive are guards evaluated against the stored record before merging.
type Patch struct {
	Turns        *[]Turn
	Score        *int
	Status       *Status
	EndedAt      *time.Time
	ClearEndedAt bool
	Backend      *string

	IfVersion *int
	IfActive  bool
}

// Validate rejects patches that would break the session invariants.
func (p Patch) Validate() error {
	if p.Score != nil && (*p.Score < MinScore || *p.Score > MaxScore) {
		return fmt.Errorf("%w: score %d outside [%d,%d]", ErrInvalidInput, *p.Score, MinScore, MaxScore)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *p.Status)
	}
	if p.EndedAt != nil && p.ClearEndedAt {
		return fmt.Errorf("%w: endedAt both set and cleared", ErrInvalidInput)
	}
	return nil
}

// Guard checks the optimistic-concurrency preconditions against current.
func (p Patch) Guard(current *Session) error {
	if p.IfVersion != nil && current.Version != *p.IfVersion {
		return fmt.Errorf("%w: session %s at version %d, expected %d", ErrConflict, current.ID, current.Version, *p.IfVersion)
	}
	if p.IfActive && current.Status != StatusActive {
		return fmt.Errorf("%w: session %s is %s", ErrConflict, current.ID, current.Status)
	}
	return nil
}

// Merge applies the set fields onto s and bumps the version.
func (p Patch) Merge(s *Session) {
	if p.Turns != nil {
		s.Turns = append([]Turn(nil), (*p.Turns)...)
	}
	if p.Score != nil {
		s.Score = *p.Score
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.EndedAt != nil {
		t := p.EndedAt.UTC()
		s.EndedAt = &t
	}
	if p.ClearEndedAt {
		s.EndedAt = nil
	}
	if p.Backend != nil {
		s.Backend = *p.Backend
	}
	s.Version++
}

// RoundPatch builds the guarded patch that persists a staged round: the new
// transcript, score and status, conditional on nobody else having written.
func RoundPatch(staged *Session, readVersion int) Patch {
	turns := staged.Turns
	score := staged.Score
	status := staged.Status
	backend := staged.Backend
	p := Patch{
		Turns:     &turns,
		Score:     &score,
		Status:    &status,
		Backend:   &backend,
		IfVersion: &readVersion,
		IfActive:  true,
	}
	if staged.EndedAt != nil {
		p.EndedAt = staged.EndedAt
	}
	return p
}
