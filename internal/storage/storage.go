package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mafia-dossier/internal/game"
)

// Record is a single finalized observation about a player in one game.
// Records are immutable once appended; stores never update or delete them.
type Record struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Category  game.Category `json:"game_type"`
	Role      game.Role     `json:"card"`
	Seat      int           `json:"number"`
	Narrative string        `json:"description"`
}

var ErrIncompleteRecord = errors.New("incomplete record")

// Validate reports whether every field of the record is present and in range.
func (r Record) Validate() error {
	switch {
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrIncompleteRecord)
	case !r.Category.Valid():
		return fmt.Errorf("%w: bad category %q", ErrIncompleteRecord, r.Category)
	case !r.Role.Valid():
		return fmt.Errorf("%w: bad role %q", ErrIncompleteRecord, r.Role)
	case !game.ValidSeat(r.Seat):
		return fmt.Errorf("%w: seat %d out of range", ErrIncompleteRecord, r.Seat)
	case strings.TrimSpace(r.Narrative) == "":
		return fmt.Errorf("%w: empty narrative", ErrIncompleteRecord)
	}
	return nil
}

// Store is the append-only participant history.
// Nicknames are matched as exact strings; no trimming or case folding.
// ReadAll returns records in insertion order and an empty slice for unknown nicknames.
// Append must write a record atomically. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, nickname string, rec Record) error
	ReadAll(ctx context.Context, nickname string) ([]Record, error)
	Nicknames(ctx context.Context) ([]string, error)
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Options struct {
	Driver      string
	FilePath    string
	SQLitePath  string
	DatabaseURL string
}

// Open builds the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile, "":
		return NewFileStore(opts.FilePath)
	case DriverPostgres:
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case DriverSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", opts.Driver)
	}
}
