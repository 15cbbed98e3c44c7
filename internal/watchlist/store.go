// Package watchlist implements the persisted, user-managed list of
// securities the engine scans: a small YAML document, loaded at startup
// and rewritten atomically on every mutation.
package watchlist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

type document struct {
	Entries []model.WatchEntry `yaml:"entries"`
}

// Store is a mutex-guarded, disk-backed watchlist.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]model.WatchEntry
}

// New creates an empty store bound to path. Call Load to populate it from
// disk.
func New(path string) *Store {
	return &Store{path: path, entries: make(map[string]model.WatchEntry)}
}

// Load reads the watchlist document from disk. A missing file is not an
// error; the store simply starts empty.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("watchlist: read %s: %w", s.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("watchlist: unmarshal %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]model.WatchEntry, len(doc.Entries))
	for _, e := range doc.Entries {
		s.entries[e.Code] = e
	}
	return nil
}

// List returns every watched entry, sorted by code.
func (s *Store) List() []model.WatchEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.WatchEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Codes returns just the watched codes, for the engine's scan fan-out.
func (s *Store) Codes() []string {
	entries := s.List()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Code
	}
	return out
}

// Has reports whether code is already watched.
func (s *Store) Has(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[code]
	return ok
}

// Add inserts or replaces an entry and persists the change.
func (s *Store) Add(entry model.WatchEntry) error {
	s.mu.Lock()
	s.entries[entry.Code] = entry
	s.mu.Unlock()
	return s.save()
}

// Remove deletes an entry by code and persists the change. Reports
// whether the code was present.
func (s *Store) Remove(code string) (bool, error) {
	s.mu.Lock()
	_, existed := s.entries[code]
	delete(s.entries, code)
	s.mu.Unlock()

	if !existed {
		return false, nil
	}
	return true, s.save()
}

func (s *Store) save() error {
	s.mu.RLock()
	doc := document{Entries: make([]model.WatchEntry, 0, len(s.entries))}
	for _, e := range s.entries {
		doc.Entries = append(doc.Entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(doc.Entries, func(i, j int) bool { return doc.Entries[i].Code < doc.Entries[j].Code })

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("watchlist: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("watchlist: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".watchlist-*.tmp")
	if err != nil {
		return fmt.Errorf("watchlist: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("watchlist: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("watchlist: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("watchlist: rename temp file: %w", err)
	}
	return nil
}
