// Package store persists pitch sessions and investor personas. The SQLite
// implementation serves local runs and tests; the DynamoDB implementation
// serves production. Both honour the same contract.
package store

import (
	"context"

	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
)

// SessionStore is the persistence gateway for sessions.
//
// UpdateSession merges the set fields of the patch over the stored record and
// returns the result. Guards in the patch are checked atomically with the
// write; a failed guard returns pitch.ErrConflict. Unknown ids return
// pitch.ErrNotFound. Other failures wrap pitch.ErrPersistence.
type SessionStore interface {
	CreateSession(ctx context.Context, s *pitch.Session) error
	GetSession(ctx context.Context, id string) (*pitch.Session, error)
	UpdateSession(ctx context.Context, id string, p pitch.Patch) (*pitch.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// ListSessions returns a user's sessions newest first. An empty userID
	// lists every session.
	ListSessions(ctx context.Context, userID string) ([]pitch.Session, error)
	SessionStats(ctx context.Context, userID string) (pitch.Stats, error)
}

// Store is everything the application persists.
type Store interface {
	SessionStore
	persona.Store
}
