package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mafia-dossier/internal/game"
)

const databaseInitTimeout = 15 * time.Second

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		nickname TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		category TEXT NOT NULL,
		role TEXT NOT NULL,
		seat INTEGER NOT NULL CHECK (seat BETWEEN 1 AND 10),
		narrative TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_nickname ON observations (nickname, seq)`,
}

// PostgresStore keeps participant history in a single observations table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, databaseInitTimeout)
	defer cancel()

	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, s := range postgresMigrations {
		if _, err := p.Exec(ctx, strings.TrimSpace(s)); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return &PostgresStore{pool: p}, nil
}

func (s *PostgresStore) Append(ctx context.Context, nickname string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO observations (id, nickname, created_at, category, role, seat, narrative)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, nickname, rec.Timestamp, string(rec.Category), string(rec.Role), rec.Seat, rec.Narrative)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadAll(ctx context.Context, nickname string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, created_at, category, role, seat, narrative
		 FROM observations WHERE nickname = $1 ORDER BY seq ASC`,
		nickname)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		var (
			r        Record
			category string
			role     string
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &category, &role, &r.Seat, &r.Narrative); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		r.Category = game.Category(category)
		r.Role = game.Role(role)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Nicknames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT nickname FROM observations ORDER BY nickname`)
	if err != nil {
		return nil, fmt.Errorf("query nicknames: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
