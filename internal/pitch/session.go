// Package pitch holds the pitch session domain: turns, sessions, the bounded
// funding-probability state machine and aggregate statistics.
package pitch

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Score bounds and defaults.
const (
	StartingScore = 50
	MinScore      = 0
	MaxScore      = 100
	MaxDelta      = 20
)

// UnparsedRationale is recorded on investor turns produced by the degraded path.
const UnparsedRationale = "unparsed adapter output"

// ApologyText is the reply used when a backend produced nothing usable at all.
const ApologyText = "I apologize, but I seem to be having technical difficulties. Please try again."

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser     Speaker = "user"
	SpeakerInvestor Speaker = "investor"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive Status = "active"
	StatusWon    Status = "won"
	StatusLost   Status = "lost"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusWon, StatusLost:
		return true
	}
	return false
}

// Terminal reports whether no further turns are accepted.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

// Outcome returns the stored outcome label ("win", "lose") or "" while active.
func (s Status) Outcome() string {
	switch s {
	case StatusWon:
		return "win"
	case StatusLost:
		return "lose"
	}
	return ""
}

// ParseStatus accepts both status names and outcome labels.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "active", "":
		return StatusActive, nil
	case "won", "win":
		return StatusWon, nil
	case "lost", "lose":
		return StatusLost, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, v)
}

// Turn is one message in the conversation. ScoreDelta and Rationale are only
// set on investor turns; the rationale is for audit and never rendered to the
// founder.
type Turn struct {
	Speaker    Speaker   `json:"role"`
	Text       string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	ScoreDelta int       `json:"scoreAdjustment,omitempty"`
	Rationale  string    `json:"feedbackHidden,omitempty"`
}

// Session is the unit of state the engine manages.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId,omitempty"`
	PersonaID string     `json:"personaId"`
	Backend   string     `json:"backend,omitempty"`
	Turns     []Turn     `json:"transcript"`
	Score     int        `json:"score"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Version   int        `json:"version"`
}

// NewSessionID generates a ULID for a new session.
func NewSessionID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

// NewSession returns an active session at the starting score whose only turn
// is the investor's opening line. The greeting has no scoring effect.
func NewSession(id, userID, personaID, backend, greeting string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ID:        id,
		UserID:    userID,
		PersonaID: personaID,
		Backend:   backend,
		Turns: []Turn{{
			Speaker:   SpeakerInvestor,
			Text:      greeting,
			Timestamp: now,
		}},
		Score:     StartingScore,
		Status:    StatusActive,
		StartedAt: now,
	}
}

// Clone returns a deep copy so a round can be staged without touching the original.
func (s *Session) Clone() *Session {
	c := *s
	c.Turns = append([]Turn(nil), s.Turns...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// Outcome is the stored outcome label for the session's status.
func (s *Session) Outcome() string {
	return s.Status.Outcome()
}
