package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository keeps runtime grants as a JSON array of usernames.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	// Touch file if not exists
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Add(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	names, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == username {
			return nil
		}
	}
	return r.saveUnlocked(append(names, username))
}

func (r *FileRepository) Remove(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	names, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != username {
			out = append(out, n)
		}
	}
	return r.saveUnlocked(out)
}

func (r *FileRepository) loadUnlocked() ([]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}
	var names []string
	if len(data) == 0 {
		return names, nil
	}
	if err := json.Unmarshal(data, &names); err != nil {
		// empty or malformed -> start fresh
		return []string{}, nil
	}
	return names, nil
}

func (r *FileRepository) saveUnlocked(names []string) error {
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o644)
}
