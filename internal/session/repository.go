package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Repository persists in-progress sessions so that a restart can tell which
// users were cut off.
type Repository interface {
	LoadAll() ([]Snapshot, error)
	Upsert(s Snapshot) error
	Remove(userID int64) error
}

// FileRepository keeps all snapshots in one JSON array.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Upsert(s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, it := range items {
		if it.UserID == s.UserID {
			items[i] = s
			updated = true
			break
		}
	}
	if !updated {
		items = append(items, s)
	}
	return r.saveUnlocked(items)
}

func (r *FileRepository) Remove(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := make([]Snapshot, 0, len(items))
	for _, it := range items {
		if it.UserID != userID {
			out = append(out, it)
		}
	}
	if len(out) == len(items) {
		return nil
	}
	return r.saveUnlocked(out)
}

func (r *FileRepository) loadUnlocked() ([]Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	var items []Snapshot
	if len(data) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		// malformed file: start fresh, sessions are disposable
		return []Snapshot{}, nil
	}
	return items, nil
}

// saveUnlocked writes to a temp file and renames it over the old one.
func (r *FileRepository) saveUnlocked(items []Snapshot) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	return os.Rename(tmp, r.path)
}
