package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/paperbird/harvest/dbopen"
)

// Preset status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Record is one stored preset version.
type Record struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Version       string `json:"version"`
	SchemaVersion int    `json:"schema_version"`
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	Checksum      string `json:"checksum"`
	Status        string `json:"status"`
	Config        string `json:"-"` // canonical JSON document
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

const recordColumns = `id, name, version, schema_version, title, description,
	checksum, status, config, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	rec := &Record{}
	err := row.Scan(&rec.ID, &rec.Name, &rec.Version, &rec.SchemaVersion,
		&rec.Title, &rec.Description, &rec.Checksum, &rec.Status,
		&rec.Config, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Upsert stores rec under its (name, version). A new version is inserted;
// an existing version with the same checksum is untouched; an existing
// version with a different checksum gets its content replaced. When
// activate is true the row becomes the name's single active version inside
// the same transaction. Returns whether a new version row was created.
func (s *Store) Upsert(ctx context.Context, rec *Record, activate bool) (bool, error) {
	created := false
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()

		existing, err := scanRecord(tx.QueryRowContext(ctx, `
			SELECT `+recordColumns+` FROM presets WHERE name = ? AND version = ?`,
			rec.Name, rec.Version))
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			created = true
			rec.Status = StatusInactive
			rec.CreatedAt = now
			rec.UpdatedAt = now
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO presets (`+recordColumns+`)
				VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
				rec.ID, rec.Name, rec.Version, rec.SchemaVersion,
				rec.Title, rec.Description, rec.Checksum, rec.Status,
				rec.Config, rec.CreatedAt, rec.UpdatedAt); err != nil {
				return err
			}
		case existing.Checksum == rec.Checksum:
			// No-op re-import. Keep the stored row as source of truth.
			*rec = *existing
		default:
			rec.ID = existing.ID
			rec.Status = existing.Status
			rec.CreatedAt = existing.CreatedAt
			rec.UpdatedAt = now
			if _, err := tx.ExecContext(ctx, `
				UPDATE presets SET schema_version = ?, title = ?, description = ?,
					checksum = ?, config = ?, updated_at = ?
				WHERE id = ?`,
				rec.SchemaVersion, rec.Title, rec.Description,
				rec.Checksum, rec.Config, rec.UpdatedAt, rec.ID); err != nil {
				return err
			}
		}

		if activate {
			if err := activateTx(ctx, tx, rec.Name, rec.ID, now); err != nil {
				return err
			}
			rec.Status = StatusActive
		}
		return nil
	})
	return created, err
}

// activateTx makes id the single active version of name. The deactivation
// of siblings runs first so the partial unique index never trips.
func activateTx(ctx context.Context, tx *sql.Tx, name, id string, now int64) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE presets SET status = ?, updated_at = ?
		WHERE name = ? AND status = ? AND id != ?`,
		StatusInactive, now, name, StatusActive, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE presets SET status = ?, updated_at = ? WHERE id = ?`,
		StatusActive, now, id)
	return err
}

// GetVersion retrieves one (name, version) row, nil when absent.
func (s *Store) GetVersion(ctx context.Context, name, version string) (*Record, error) {
	return scanRecord(s.DB.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM presets WHERE name = ? AND version = ?`,
		name, version))
}

// GetActive retrieves the active version of name, nil when none.
func (s *Store) GetActive(ctx context.Context, name string) (*Record, error) {
	return scanRecord(s.DB.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM presets WHERE name = ? AND status = ?`,
		name, StatusActive))
}

// List returns all stored versions, optionally filtered by name, newest
// first within a name.
func (s *Store) List(ctx context.Context, name string) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM presets`
	args := []any{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY name, created_at DESC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Activate makes (name, version) the single active version of name.
// Returns false when the version does not exist.
func (s *Store) Activate(ctx context.Context, name, version string) (bool, error) {
	found := false
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		rec, err := scanRecord(tx.QueryRowContext(ctx, `
			SELECT `+recordColumns+` FROM presets WHERE name = ? AND version = ?`,
			name, version))
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		found = true
		return activateTx(ctx, tx, name, rec.ID, time.Now().UnixMilli())
	})
	return found, err
}

// Deactivate clears the active version of name. Returns false when no
// version was active.
func (s *Store) Deactivate(ctx context.Context, name string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE presets SET status = ?, updated_at = ?
		WHERE name = ? AND status = ?`,
		StatusInactive, time.Now().UnixMilli(), name, StatusActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
