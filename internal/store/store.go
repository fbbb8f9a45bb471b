// Package store persists labeled hand poses.
//
// Three backends implement PoseStore: FileStore keeps a flat JSON file,
// Store keeps a SQLite database, and Client talks to a pose server over HTTP.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is a SQLite database of poses.
type Store struct {
	db   *sql.DB
	path string
}

// New opens or creates the database at path and brings its schema up to date.
// Every connection waits up to five seconds on a locked database and uses
// write-ahead logging.
func New(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path is the database file.
func (s *Store) Path() string {
	return s.path
}
