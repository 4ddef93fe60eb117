package transcript

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the dialogue_transcripts table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS dialogue_transcripts (
    id           BIGSERIAL PRIMARY KEY,
    session_id   TEXT NOT NULL,
    character_id TEXT NOT NULL DEFAULT '',
    speaker      TEXT NOT NULL,
    text         TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_dialogue_transcripts_session ON dialogue_transcripts(session_id, id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// dialogue_transcripts table and index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("transcript: migrate: %w", err)
	}
	return nil
}

// Append stores one entry, filling in its ID and CreatedAt.
func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	const query = `
		INSERT INTO dialogue_transcripts (session_id, character_id, speaker, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query,
		entry.SessionID, entry.CharacterID, entry.Speaker, entry.Text,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("transcript: append: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for the session in chronological order,
// oldest first. limit <= 0 returns all entries.
func (s *PostgresStore) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit <= 0 {
		const query = `
			SELECT id, session_id, character_id, speaker, text, created_at
			FROM dialogue_transcripts
			WHERE session_id = $1
			ORDER BY id`
		rows, err = s.db.Query(ctx, query, sessionID)
	} else {
		// Newest N rows, re-sorted chronologically.
		const query = `
			SELECT id, session_id, character_id, speaker, text, created_at
			FROM (
				SELECT id, session_id, character_id, speaker, text, created_at
				FROM dialogue_transcripts
				WHERE session_id = $1
				ORDER BY id DESC
				LIMIT $2
			) tail
			ORDER BY id`
		rows, err = s.db.Query(ctx, query, sessionID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.CharacterID, &e.Speaker, &e.Text, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("transcript: recent scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: recent: %w", err)
	}
	return entries, nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("transcript: ping: %w", err)
	}
	return nil
}
