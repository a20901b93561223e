// Package store handles SQLite persistence of prompts and practice history.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/verte-zerg/recite/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a prompt id is unknown.
var ErrNotFound = errors.New("prompt not found")

// idLength is the number of hex characters of the content hash used as id.
const idLength = 15

// Store wraps SQLite access for prompts and practice history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prompts (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			save_count INTEGER NOT NULL DEFAULT 1,
			access_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS practice_sessions (
			id TEXT PRIMARY KEY,
			prompt_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			sentences INTEGER NOT NULL,
			words INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			peak_level REAL NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_practice_sessions_ended_at ON practice_sessions(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_practice_sessions_prompt_id ON practice_sessions(prompt_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// PromptID returns the content id of text.
func PromptID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:idLength]
}

// Save stores text under its content id. Saving the same text again only
// increments its save count.
func (s *Store) Save(ctx context.Context, text string) (model.Prompt, error) {
	id := PromptID(text)
	now := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (id, text, save_count, access_count, created_at, updated_at)
		 VALUES (?, ?, 1, 0, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET save_count = save_count + 1, updated_at = excluded.updated_at`,
		id, text, now, now,
	); err != nil {
		return model.Prompt{}, fmt.Errorf("failed to save prompt: %w", err)
	}
	return s.load(ctx, id)
}

// Get returns the prompt with id and increments its access count.
func (s *Store) Get(ctx context.Context, id string) (model.Prompt, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE prompts SET access_count = access_count + 1 WHERE id = ?`, id)
	if err != nil {
		return model.Prompt{}, fmt.Errorf("failed to get prompt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Prompt{}, fmt.Errorf("failed to get prompt: %w", err)
	}
	if n == 0 {
		return model.Prompt{}, ErrNotFound
	}
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id string) (model.Prompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, save_count, access_count, created_at, updated_at FROM prompts WHERE id = ?`, id)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Prompt{}, ErrNotFound
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row scanner) (model.Prompt, error) {
	var p model.Prompt
	var created, updated string
	if err := row.Scan(&p.ID, &p.Text, &p.SaveCount, &p.AccessCount, &created, &updated); err != nil {
		return model.Prompt{}, err
	}
	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return model.Prompt{}, err
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return model.Prompt{}, err
	}
	return p, nil
}

// List returns every stored prompt, most recently saved first.
func (s *Store) List(ctx context.Context) ([]model.Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, save_count, access_count, created_at, updated_at FROM prompts ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var prompts []model.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prompts, nil
}

// InsertPractice stores a completed practice session and returns its id.
func (s *Store) InsertPractice(ctx context.Context, rec model.PracticeRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = xid.New().String()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO practice_sessions (id, prompt_id, started_at, ended_at, sentences, words, skipped, peak_level, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.PromptID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.EndedAt.UTC().Format(time.RFC3339Nano),
		rec.Sentences,
		rec.Words,
		rec.Skipped,
		rec.PeakLevel,
		rec.DurationMs,
	); err != nil {
		return "", fmt.Errorf("failed to insert practice session: %w", err)
	}
	return rec.ID, nil
}

// ListPractice returns practice sessions filtered by cfg, oldest first. Last
// keeps only the most recent sessions.
func (s *Store) ListPractice(ctx context.Context, cfg model.HistoryConfig) ([]model.PracticeRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.PromptID != "" {
		clauses = append(clauses, "prompt_id = ?")
		args = append(args, cfg.PromptID)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.UTC().Format(time.RFC3339Nano))
	}
	limit := -1
	if cfg.Last > 0 {
		limit = cfg.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id, prompt_id, started_at, ended_at, sentences, words, skipped, peak_level, duration_ms
		FROM (
			SELECT * FROM practice_sessions
			WHERE %s
			ORDER BY ended_at DESC
			LIMIT ?
		)
		ORDER BY ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var records []model.PracticeRecord
	for rows.Next() {
		var rec model.PracticeRecord
		var started, ended string
		if err := rows.Scan(&rec.ID, &rec.PromptID, &started, &ended, &rec.Sentences, &rec.Words, &rec.Skipped, &rec.PeakLevel, &rec.DurationMs); err != nil {
			return nil, err
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, err
		}
		if rec.EndedAt, err = time.Parse(time.RFC3339Nano, ended); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
