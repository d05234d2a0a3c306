package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// FileStore keeps records in memory and saves them as JSON after every
// change. A store without a path never touches the disk.
type FileStore struct {
	path    string
	records []*Record
	mu      sync.RWMutex
}

// NewFileStore opens the JSON file at path, creating its directory
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	s := &FileStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemoryStore creates a store that is never saved
func NewMemoryStore() *FileStore {
	return &FileStore{}
}

// Put inserts or refreshes rec
func (s *FileStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := now()
	for _, r := range s.records {
		if r.Name == rec.Name && r.Checksum == rec.Checksum {
			r.LastSeen = seen
			r.Seen++
			*rec = *r
			return s.save()
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.FirstSeen = seen
	rec.LastSeen = seen
	rec.Seen = 1
	stored := *rec
	s.records = append(s.records, &stored)
	return s.save()
}

// Get returns the latest record for name
func (s *FileStore) Get(_ context.Context, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Record
	for _, r := range s.records {
		if r.Name == name && (latest == nil || !r.LastSeen.Before(latest.LastSeen)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	out := *latest
	return &out, nil
}

// List returns copies of all records
func (s *FileStore) List(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out := *r
		records = append(records, &out)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return records[i].LastSeen.Before(records[j].LastSeen)
	})
	return records, nil
}

// save persists records to disk
func (s *FileStore) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// load reads records from disk
func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return nil
}

// Ping always succeeds for the file store
func (s *FileStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}
