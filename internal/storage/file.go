package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// line is one JSONL entry of the history file.
type line struct {
	Nickname string `json:"nickname"`
	Record   Record `json:"record"`
}

// FileStore persists participant history as JSON lines, one record per line.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure store dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to init store file: %w", err)
	}
	_ = f.Close()
	return &FileStore{path: path}, nil
}

// Append writes the record with a single write call on an O_APPEND file.
// A torn last line left by an interrupted write is terminated first, so the
// new record always starts on a line of its own.
func (s *FileStore) Append(_ context.Context, nickname string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(line{Nickname: nickname, Record: rec})
	if err != nil {
		return fmt.Errorf("encode append: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open append: %w", err)
	}
	torn, err := endsTorn(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("check tail: %w", err)
	}
	if torn {
		data = append([]byte{'\n'}, data...)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write append: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync append: %w", err)
	}
	return f.Close()
}

// endsTorn reports whether a non-empty file lacks a trailing newline.
func endsTorn(f *os.File) (bool, error) {
	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	if st.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func (s *FileStore) ReadAll(_ context.Context, nickname string) ([]Record, error) {
	out := []Record{}
	err := s.scan(func(l line) {
		if l.Nickname == nickname {
			out = append(out, l.Record)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FileStore) Nicknames(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.scan(func(l line) { seen[l.Nickname] = struct{}{} })
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) scan(fn func(line)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open read: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	sc.Buffer(buf, 10*1024*1024)
	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			// torn tail from an interrupted write
			continue
		}
		fn(l)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}
