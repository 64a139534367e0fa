package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/toxiclens/internal/models"
)

// Postgres stores records with their scores as a pgvector column.
type Postgres struct {
	pool    *pgxpool.Pool
	mu      sync.Mutex
	sources map[string]int
}

// NewPostgres connects to the database at databaseURL
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool, sources: make(map[string]int)}, nil
}

// Close closes the database connection
func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// sourceID gets an existing source entry or creates a new one
func (s *Postgres) sourceID(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.sources[name]; ok {
		return id, nil
	}

	var id int
	err := s.pool.QueryRow(ctx, "SELECT id FROM sources WHERE name = $1", name).Scan(&id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("error checking for existing source: %w", err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO sources (name, created_at) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`,
			name, time.Now()).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to create source entry: %w", err)
		}
	}

	s.sources[name] = id
	return id, nil
}

// AddResult stores a record immediately.
func (s *Postgres) AddResult(ctx context.Context, record Record) error {
	id, err := s.sourceID(ctx, record.Source)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses
		(source_id, content, scores, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, record.Text, scoresVector(record.Scores), flaggedColumn(record.Labels), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	return nil
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *Postgres) Flush() error {
	return nil
}

// SearchSimilar returns stored texts ordered by L2 distance of their scores.
func (s *Postgres) SearchSimilar(ctx context.Context, scores models.Scores, limit int) ([]Match, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT src.name, a.content, a.scores::real[], a.scores <-> $1 AS distance
		FROM analyses a
		JOIN sources src ON a.source_id = src.id
		ORDER BY a.scores <-> $1
		LIMIT $2`,
		scoresVector(scores), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar analyses: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m   Match
			raw []float32
		)
		if err := rows.Scan(&m.Source, &m.Text, &raw, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		copy(m.Scores[:], raw)
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// InitSchema creates the database schema if it doesn't exist
func (s *Postgres) InitSchema(ctx context.Context) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	if !exists {
		if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, schemaSQL())
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_analyses_source_id ON analyses(source_id);
        CREATE INDEX IF NOT EXISTS idx_analyses_scores ON analyses USING ivfflat (scores vector_l2_ops) WITH (lists = 100);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}

// scoresVector encodes scores for the vector column.
func scoresVector(scores models.Scores) pgvector.Vector {
	return pgvector.NewVector(scores[:])
}

// flaggedColumn returns the flagged class names, never nil, since the column
// is NOT NULL.
func flaggedColumn(labels models.Labels) []string {
	flagged := labels.Flagged()
	if flagged == nil {
		return []string{}
	}
	return flagged
}

func schemaSQL() string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS sources (
            id SERIAL PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(name)
        );

        CREATE TABLE IF NOT EXISTS analyses (
            id SERIAL PRIMARY KEY,
            source_id INTEGER REFERENCES sources(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            scores vector(%d) NOT NULL,
            flagged TEXT[] NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL
        );
    `, models.NumClasses)
}
