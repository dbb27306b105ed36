// Package archive persists dialogue transcripts to SQLite.
// It uses modernc.org/sqlite for pure-Go, CGO-free database access.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/normanking/procurevoice/internal/bus"
	"github.com/normanking/procurevoice/internal/dialogue"
)

//go:embed migrations/001_transcripts.sql
var transcriptsSchema string

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrInvalidID is returned for an empty session ID.
var ErrInvalidID = errors.New("invalid session id")

// Session summarizes one archived session.
type Session struct {
	ID        string    `json:"id"`
	Turns     int       `json:"turns"`
	StartedAt time.Time `json:"started_at"`
	LastAt    time.Time `json:"last_at"`
}

// Store is a transcript archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path. Use ":memory:" for a throwaway
// archive.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return s, nil
}

func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(transcriptsSchema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTurn stores a turn. Saving the same turn twice is a no-op.
func (s *Store) SaveTurn(ctx context.Context, t dialogue.Turn) error {
	if t.SessionID == "" {
		return ErrInvalidID
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO turns (id, session_id, role, text, lang, source, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`,
		t.ID,
		t.SessionID,
		string(t.Role),
		t.Text,
		t.Lang,
		t.Source,
		t.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

// SessionTurns returns the turns of one session in the order they were
// appended.
func (s *Store) SessionTurns(ctx context.Context, sessionID string) ([]dialogue.Turn, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, session_id, role, text, lang, source, created_at
	FROM turns
	WHERE session_id = ?
	ORDER BY created_at, rowid
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []dialogue.Turn
	for rows.Next() {
		var (
			t         dialogue.Turn
			role      string
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Text, &t.Lang, &t.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = dialogue.Role(role)
		if t.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Sessions lists archived sessions, most recent activity first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at)
	FROM turns
	GROUP BY session_id
	ORDER BY MAX(created_at) DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess        Session
			first, last string
		)
		if err := rows.Scan(&sess.ID, &sess.Turns, &first, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.StartedAt, err = time.Parse(timeFormat, first); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if sess.LastAt, err = time.Parse(timeFormat, last); err != nil {
			return nil, fmt.Errorf("parse last_at: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Attach archives every turn appended on b.
func (s *Store) Attach(b *bus.EventBus, logger zerolog.Logger) {
	b.Subscribe(bus.EventTypeTurnAppended, func(ev bus.Event) {
		turn, ok := ev.Data["turn"].(dialogue.Turn)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.SaveTurn(ctx, turn); err != nil {
			logger.Warn().Err(err).Str("session", turn.SessionID).Msg("Failed to archive turn")
		}
	})
}
