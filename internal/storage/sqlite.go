package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"mafia-dossier/internal/game"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		nickname TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		category TEXT NOT NULL,
		role TEXT NOT NULL,
		seat INTEGER NOT NULL CHECK (seat BETWEEN 1 AND 10),
		narrative TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_nickname ON observations(nickname, seq)`,
}

// SQLiteStore keeps participant history in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	inMemory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every new connection to :memory: is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	for _, m := range sqliteMigrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, nickname string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (id, nickname, created_at, category, role, seat, narrative)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, nickname, rec.Timestamp.UnixNano(), string(rec.Category), string(rec.Role), rec.Seat, rec.Narrative)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadAll(ctx context.Context, nickname string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, category, role, seat, narrative
		 FROM observations WHERE nickname = ? ORDER BY seq ASC`, nickname)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		var (
			r        Record
			nanos    int64
			category string
			role     string
		)
		if err := rows.Scan(&r.ID, &nanos, &category, &role, &r.Seat, &r.Narrative); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		r.Timestamp = time.Unix(0, nanos).UTC()
		r.Category = game.Category(category)
		r.Role = game.Role(role)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Nicknames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT nickname FROM observations ORDER BY nickname`)
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

func (s *SQLiteStore) Close() error { return s.db.Close() }
