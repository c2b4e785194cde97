package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the lessons table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS lessons (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    language   TEXT NOT NULL,
    words      JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_lessons_title ON lessons(title);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. The transcript is stored
// as a JSONB column.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore on the given connection or pool.
// Call [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("content: migrate: %w", err)
	}
	return nil
}

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, lesson *Lesson) error {
	if err := lesson.Validate(); err != nil {
		return err
	}
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}

	wordsJSON, err := json.Marshal(lesson.Words)
	if err != nil {
		return fmt.Errorf("content: marshal words: %w", err)
	}

	const query = `
		INSERT INTO lessons (id, title, language, words)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		lesson.ID, lesson.Title, lesson.Language, wordsJSON,
	).Scan(&lesson.CreatedAt, &lesson.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("content: lesson with id %q already exists", lesson.ID)
		}
		return fmt.Errorf("content: create: %w", err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Lesson, error) {
	const query = `
		SELECT id, title, language, words, created_at, updated_at
		FROM lessons
		WHERE id = $1`

	var l Lesson
	var wordsJSON []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.Title, &l.Language, &wordsJSON, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("content: get %q: %w", id, err)
	}
	if err := json.Unmarshal(wordsJSON, &l.Words); err != nil {
		return nil, fmt.Errorf("content: unmarshal words for %q: %w", id, err)
	}
	return &l, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context) ([]LessonSummary, error) {
	const query = `
		SELECT id, title, language, jsonb_array_length(words)
		FROM lessons
		ORDER BY title`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("content: list: %w", err)
	}
	defer rows.Close()

	var out []LessonSummary
	for rows.Next() {
		var sum LessonSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Language, &sum.WordCount); err != nil {
			return nil, fmt.Errorf("content: list scan: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content: list rows: %w", err)
	}
	return out, nil
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("content: delete %q: %w", id, err)
	}
	return nil
}

// isDuplicateKeyError checks for a PostgreSQL unique-violation (23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
