// Package store provides the SQLite persistence layer for the preset
// registry.
package store

import (
	"database/sql"

	"github.com/paperbird/harvest/dbopen"
)

// Store is the registry database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the registry SQLite database at path, applies the
// pragmas and the registry schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// NewWithDB wraps an already-open database (tests use dbopen.OpenMemory).
// The caller is responsible for having applied Schema.
func NewWithDB(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
