package dedup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"spacedub/internal/logging"
)

// Store is the durable set of work unit ids already admitted for processing.
// The whole set is loaded at construction and every Mark rewrites the file
// before returning.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	order []string
	seen  map[string]struct{}
}

// Open loads the store at path. A missing or empty file yields an empty
// store; an unreadable or corrupt file is an error because starting empty
// would re-admit every previously handled mention.
func Open(path string, logger *slog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("dedup store path is empty")
	}
	s := &Store{
		path:   path,
		logger: logging.NewComponentLogger(logger, "dedup"),
		seen:   make(map[string]struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Seen reports whether id was already admitted.
func (s *Store) Seen(id string) bool {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// Mark records id and persists the set. It returns false without touching
// disk when id is already present. On persist failure the in-memory set is
// rolled back so Seen stays consistent with the file.
func (s *Store) Mark(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("work unit id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return false, nil
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)

	if err := s.save(); err != nil {
		delete(s.seen, id)
		s.order = s.order[:len(s.order)-1]
		return false, fmt.Errorf("persist dedup store: %w", err)
	}

	s.logger.Debug("marked work unit seen",
		logging.String(logging.FieldJobID, id),
		logging.Int("entry_count", len(s.order)))
	return true, nil
}

// IDs returns every recorded id in admission order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Count returns the number of recorded ids.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read dedup store: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("parse dedup store %s: %w", s.path, err)
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := s.seen[id]; dup {
			continue
		}
		s.seen[id] = struct{}{}
		s.order = append(s.order, id)
	}

	s.logger.Debug("loaded dedup store",
		logging.Int("entry_count", len(s.order)),
		logging.String("path", s.path))
	return nil
}

// save writes the set atomically via a temp file in the same directory.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.order, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ids: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
