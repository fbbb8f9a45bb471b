package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is the flat file used by the pose server.
const DefaultFileName = "handposes.json"

// FileStore keeps every pose in a single JSON array on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ PoseStore = (*FileStore)(nil)

// NewFileStore creates a store backed by the file at path. The file is
// created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save appends records to the file. Entries already in the file are kept
// verbatim, including ones Load would skip.
func (s *FileStore) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readRaw()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode pose: %w", err)
		}
		existing = append(existing, data)
	}

	return s.write(existing)
}

// Load reads and decodes all poses in the file.
func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	records, skipped, err := DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return partial(records, skipped)
}

func (s *FileStore) readRaw() ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return raw, nil
}

// write replaces the file atomically with a temp file and rename.
func (s *FileStore) write(raw []json.RawMessage) error {
	if raw == nil {
		raw = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode poses: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// DeleteByLabel rewrites the file without the poses stored under label.
// Entries that do not decode are kept.
func (s *FileStore) DeleteByLabel(ctx context.Context, label string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readRaw()
	if err != nil {
		return 0, err
	}

	kept := raw[:0:0]
	var removed int64
	for _, elem := range raw {
		var rec Record
		if err := json.Unmarshal(elem, &rec); err == nil && rec.Label == label {
			removed++
			continue
		}
		kept = append(kept, elem)
	}
	if removed == 0 {
		return 0, ErrNotFound
	}

	if err := s.write(kept); err != nil {
		return 0, err
	}
	return removed, nil
}
