// Package transcript persists finished turn sequences as JSON records so a
// task can be reviewed or resumed after the process exits.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tandemcode/tandem/pkg/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("transcript not found")

// Record is one stored turn sequence.
type Record struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"`
	State      string          `json:"state"`
	Iterations int             `json:"iterations"`
	CreatedAt  time.Time       `json:"createdAt"`
	Messages   []types.Message `json:"messages"`
}

// Title derives a short label from the first user message.
func (r Record) Title() string {
	for _, m := range r.Messages {
		if m.Role != types.RoleUser {
			continue
		}
		title := strings.TrimSpace(m.Content)
		if idx := strings.IndexByte(title, '\n'); idx >= 0 {
			title = title[:idx]
		}
		if len(title) > 80 {
			title = title[:80] + "..."
		}
		return title
	}
	return "(empty)"
}

// Store is a directory of transcript records. Writes go through a file lock
// and an atomic rename, so concurrent engine processes sharing a data
// directory cannot corrupt a record.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*fileLock
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, locks: make(map[string]*fileLock)}
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) lockFor(path string) *fileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = newFileLock(path)
		s.locks[path] = l
	}
	return l
}

// Save writes a record, assigning an ID when it has none, and returns the
// stored ID.
func (s *Store) Save(rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = types.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create transcript directory: %w", err)
	}

	path := s.pathFor(rec.ID)
	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("lock transcript: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("store transcript: %w", err)
	}
	return rec.ID, nil
}

// Load reads one record by ID.
func (s *Store) Load(id string) (Record, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read transcript: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode transcript %s: %w", id, err)
	}
	return rec, nil
}

// List returns all records, newest first. Unreadable entries are skipped.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript directory: %w", err)
	}

	var records []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(id string) error {
	path := s.pathFor(id)
	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock transcript: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}
