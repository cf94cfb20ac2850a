package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fwojciec/sitecrawl"
)

// File names used inside the state directory.
const (
	QueueFile   = "state.curl"
	VisitedFile = "state.nodes"
)

var _ sitecrawl.StateStore = (*StateStore)(nil)

// StateStore implements sitecrawl.StateStore with JSON files in a directory.
// Every write goes to a temporary file that is renamed into place.
type StateStore struct {
	dir string

	mu sync.Mutex
}

// NewStateStore creates a StateStore rooted at dir. The directory is created
// on first write.
func NewStateStore(dir string) *StateStore {
	return &StateStore{dir: dir}
}

// Dir returns the state directory.
func (s *StateStore) Dir() string {
	return s.dir
}

// SaveQueue replaces the stored queue. Saving an empty queue removes the file.
func (s *StateStore) SaveQueue(ctx context.Context, reqs []sitecrawl.QueuedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(reqs) == 0 {
		return removeIfExists(s.path(QueueFile))
	}
	return s.writeJSON(QueueFile, reqs)
}

// LoadQueue returns the stored queue, or an empty slice when there is none.
func (s *StateStore) LoadQueue(ctx context.Context) ([]sitecrawl.QueuedRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqs := []sitecrawl.QueuedRequest{}
	if err := s.readJSON(QueueFile, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// SaveVisited merges entries into the stored visited file.
func (s *StateStore) SaveVisited(ctx context.Context, entries []sitecrawl.VisitedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored []sitecrawl.VisitedEntry
	if err := s.readJSON(VisitedFile, &stored); err != nil {
		return err
	}

	merged := make(map[string]sitecrawl.VisitState, len(stored)+len(entries))
	for _, e := range stored {
		merged[e.URL] = e.State
	}
	for _, e := range entries {
		merged[e.URL] = e.State
	}

	return s.writeJSON(VisitedFile, sortedEntries(merged))
}

// LoadVisited returns every stored entry ordered by URL.
func (s *StateStore) LoadVisited(ctx context.Context) ([]sitecrawl.VisitedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := []sitecrawl.VisitedEntry{}
	if err := s.readJSON(VisitedFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Reset removes both state files.
func (s *StateStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return errors.Join(
		removeIfExists(s.path(QueueFile)),
		removeIfExists(s.path(VisitedFile)),
	)
}

func (s *StateStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *StateStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return sitecrawl.Errorf(sitecrawl.EINVALID, "corrupt state file %s: %v", name, err)
	}
	return nil
}

func (s *StateStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	return writeFileAtomic(s.path(name), data)
}

func sortedEntries(m map[string]sitecrawl.VisitState) []sitecrawl.VisitedEntry {
	entries := make([]sitecrawl.VisitedEntry, 0, len(m))
	for u, st := range m {
		entries = append(entries, sitecrawl.VisitedEntry{URL: u, State: st})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })
	return entries
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
