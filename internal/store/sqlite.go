package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/apresai/pitcharena/internal/persona"
	"github.com/apresai/pitcharena/internal/pitch"
	"github.com/apresai/pitcharena/internal/store/migrations"
)

// SQLite persists sessions and personas in a local SQLite file.
type SQLite struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// embedded migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	clean := filepath.Clean(path)
	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := "file:" + clean + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer connection serializes read-modify-write transactions.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyMigrations(db *sql.DB, fsys fs.FS) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var n int
		if err := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", pitch.ErrPersistence, op, err)
}

// Sessions

const sessionColumns = `id, user_id, persona_id, backend, chat_transcript, score, outcome, started_at, ended_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*pitch.Session, error) {
	var (
		s          pitch.Session
		transcript string
		outcome    sql.NullString
		startedAt  int64
		endedAt    sql.NullInt64
	)
	if err := r.Scan(&s.ID, &s.UserID, &s.PersonaID, &s.Backend, &transcript, &s.Score, &outcome, &startedAt, &endedAt, &s.Version); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(transcript), &s.Turns); err != nil {
		return nil, fmt.Errorf("decode transcript of %s: %w", s.ID, err)
	}
	status, err := pitch.ParseStatus(outcome.String)
	if err != nil {
		return nil, err
	}
	s.Status = status
	s.StartedAt = fromMillis(startedAt)
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		s.EndedAt = &t
	}
	return &s, nil
}

func sessionArgs(s *pitch.Session) ([]any, error) {
	transcript, err := json.Marshal(s.Turns)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	var outcome sql.NullString
	if o := s.Outcome(); o != "" {
		outcome = sql.NullString{String: o, Valid: true}
	}
	var endedAt sql.NullInt64
	if s.EndedAt != nil {
		endedAt = sql.NullInt64{Int64: toMillis(*s.EndedAt), Valid: true}
	}
	return []any{s.ID, s.UserID, s.PersonaID, s.Backend, string(transcript), s.Score, outcome, toMillis(s.StartedAt), endedAt, s.Version}, nil
}

func (s *SQLite) CreateSession(ctx context.Context, sess *pitch.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return persistErr("create session", err)
	}
	args = append(args, toMillis(time.Now()))
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pitch_sessions (`+sessionColumns+`, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session %s already exists", pitch.ErrConflict, sess.ID)
		}
		return persistErr("create session", err)
	}
	return nil
}

func (s *SQLite) GetSession(ctx context.Context, id string) (*pitch.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM pitch_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pitch.ErrNotFound, id)
	}
	if err != nil {
		return nil, persistErr("get session", err)
	}
	return sess, nil
}

func (s *SQLite) UpdateSession(ctx context.Context, id string, p pitch.Patch) (*pitch.Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistErr("begin update", err)
	}
	defer tx.Rollback() //nolint:errcheck

	sess, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM pitch_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pitch.ErrNotFound, id)
	}
	if err != nil {
		return nil, persistErr("load session for update", err)
	}
	if err := p.Guard(sess); err != nil {
		return nil, err
	}
	readVersion := sess.Version
	p.Merge(sess)

	args, err := sessionArgs(sess)
	if err != nil {
		return nil, persistErr("update session", err)
	}
	// args: id, user, persona, backend, transcript, score, outcome, started, ended, version
	res, err := tx.ExecContext(ctx,
		`UPDATE pitch_sessions
		    SET backend = ?, chat_transcript = ?, score = ?, outcome = ?, ended_at = ?, version = ?
		  WHERE id = ? AND version = ?`,
		args[3], args[4], args[5], args[6], args[8], args[9], id, readVersion)
	if err != nil {
		return nil, persistErr("update session", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: session %s", pitch.ErrConflict, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, persistErr("commit update", err)
	}
	return sess, nil
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pitch_sessions WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete session", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", pitch.ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) ListSessions(ctx context.Context, userID string) ([]pitch.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM pitch_sessions`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY started_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list sessions", err)
	}
	defer rows.Close()

	var out []pitch.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, persistErr("scan session", err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list sessions", err)
	}
	return out, nil
}

func (s *SQLite) SessionStats(ctx context.Context, userID string) (pitch.Stats, error) {
	var wins, losses int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN outcome = 'win' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN outcome = 'lose' THEN 1 ELSE 0 END), 0)
		   FROM pitch_sessions WHERE user_id = ?`, userID).Scan(&wins, &losses)
	if err != nil {
		return pitch.Stats{}, persistErr("session stats", err)
	}
	return pitch.NewStats(wins, losses), nil
}

// Personas

const personaColumns = `id, name, role, region, language_code, avatar_url, risk_appetite, target_sector, check_size, investment_thesis, talking_style_json, created_at`

func scanPersona(r rowScanner) (*persona.Persona, error) {
	var (
		p         persona.Persona
		style     string
		createdAt int64
	)
	if err := r.Scan(&p.ID, &p.Name, &p.Role, &p.Region, &p.LanguageCode, &p.AvatarURL, &p.RiskAppetite,
		&p.TargetSectors, &p.CheckSize, &p.InvestmentThesis, &style, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(style), &p.Style); err != nil {
		return nil, fmt.Errorf("decode talking style of %s: %w", p.ID, err)
	}
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

func (s *SQLite) GetPersona(ctx context.Context, id string) (*persona.Persona, error) {
	p, err := scanPersona(s.db.QueryRowContext(ctx, `SELECT `+personaColumns+` FROM personas WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pitch.ErrPersonaNotFound, id)
	}
	if err != nil {
		return nil, persistErr("get persona", err)
	}
	return p, nil
}

func (s *SQLite) ListPersonas(ctx context.Context) ([]persona.Persona, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+personaColumns+` FROM personas ORDER BY created_at, name`)
	if err != nil {
		return nil, persistErr("list personas", err)
	}
	defer rows.Close()

	var out []persona.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, persistErr("scan persona", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list personas", err)
	}
	return out, nil
}

func (s *SQLite) CreatePersona(ctx context.Context, p *persona.Persona) error {
	style, err := json.Marshal(p.Style)
	if err != nil {
		return persistErr("encode talking style", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO personas (`+personaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Role, p.Region, p.LanguageCode, p.AvatarURL, p.RiskAppetite,
		p.TargetSectors, p.CheckSize, p.InvestmentThesis, string(style), toMillis(p.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: persona %s already exists", pitch.ErrConflict, p.ID)
		}
		return persistErr("create persona", err)
	}
	return nil
}

func (s *SQLite) UpdatePersona(ctx context.Context, p *persona.Persona) error {
	style, err := json.Marshal(p.Style)
	if err != nil {
		return persistErr("encode talking style", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE personas
		    SET name = ?, role = ?, region = ?, language_code = ?, avatar_url = ?, risk_appetite = ?,
		        target_sector = ?, check_size = ?, investment_thesis = ?, talking_style_json = ?
		  WHERE id = ?`,
		p.Name, p.Role, p.Region, p.LanguageCode, p.AvatarURL, p.RiskAppetite,
		p.TargetSectors, p.CheckSize, p.InvestmentThesis, string(style), p.ID)
	if err != nil {
		return persistErr("update persona", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", pitch.ErrPersonaNotFound, p.ID)
	}
	return nil
}

func (s *SQLite) DeletePersona(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM personas WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete persona", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", pitch.ErrPersonaNotFound, id)
	}
	return nil
}
