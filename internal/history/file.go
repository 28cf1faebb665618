package history

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"siterag/internal/domain"
)

// FileStore keeps the history in a JSON file. All reads and writes go
// through one mutex so Update is a single-writer read-modify-write; the
// file is replaced atomically by renaming a temp file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = "history.json"
	}
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (domain.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) Update(ctx context.Context, fn func(domain.History) (domain.History, error)) (domain.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return domain.History{}, err
	}
	cur, err := s.read()
	if err != nil {
		return domain.History{}, err
	}
	next, err := fn(cur)
	if err != nil {
		return domain.History{}, err
	}
	if err := s.write(next); err != nil {
		return domain.History{}, err
	}
	return next, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(domain.History{})
}

// read returns an empty history when the file does not exist yet.
func (s *FileStore) read() (domain.History, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.History{Topics: []domain.HistoryEntry{}}, nil
	}
	if err != nil {
		return domain.History{}, fmt.Errorf("read history: %w", err)
	}
	return decode(data)
}

func (s *FileStore) write(h domain.History) error {
	data, err := encode(h)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
