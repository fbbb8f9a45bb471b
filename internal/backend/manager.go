package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrBackendNotFound is returned when a requested backend was not discovered.
var ErrBackendNotFound = errors.New("backend not found")

// Manager discovers backends installed under a directory.
type Manager struct {
	dir      string
	backends map[string]*Backend
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewManager creates a Manager for dir. A nil logger discards output.
// Relative directories are made absolute so executables resolve from any
// working directory.
func NewManager(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Manager{
		dir:      dir,
		backends: make(map[string]*Backend),
		logger:   logger,
	}
}

// Dir returns the directory scanned by Discover.
func (m *Manager) Dir() string {
	return m.dir
}

// Discover scans every subdirectory of the backend directory for a
// backend.json manifest. A missing directory yields no backends. Unreadable
// or invalid manifests are logged and skipped.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.backends = make(map[string]*Backend)

	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read backend dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(path, ManifestFile))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			m.logger.Warn("skipping backend", slog.String("path", path), slog.Any("error", err))
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			m.logger.Warn("skipping backend with invalid manifest", slog.String("path", path), slog.Any("error", err))
			continue
		}
		if manifest.Name == "" || manifest.Executable == "" {
			m.logger.Warn("skipping backend without name or executable", slog.String("path", path))
			continue
		}

		m.backends[manifest.Name] = &Backend{
			Manifest:   manifest,
			Path:       path,
			Executable: filepath.Join(path, manifest.Executable),
		}
	}

	return nil
}

// Get returns a discovered backend by name.
func (m *Manager) Get(name string) (*Backend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	return b, nil
}

// List returns every discovered backend ordered by name.
func (m *Manager) List() []*Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Backend, 0, len(m.backends))
	for _, b := range m.backends {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Manifest.Name < list[j].Manifest.Name })
	return list
}
