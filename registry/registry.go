// Package registry stores versioned presets and controls which version of
// each preset is live. Consumers never read the registry mid-crawl: they
// take an immutable Snapshot at activation (or on explicit refresh) and run
// against that.
//
// Usage:
//
//	reg, err := registry.New(&registry.Config{DBPath: "harvest.db"}, logger)
//	defer reg.Close()
//	rec, created, err := reg.Import(ctx, raw, true)
//	snap, err := reg.Snapshot(ctx, "tagblatt")
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paperbird/harvest/idgen"
	"github.com/paperbird/harvest/preset"
	"github.com/paperbird/harvest/registry/internal/store"
)

// ErrNotFound is returned when a preset name or version does not exist (or
// has no active version, for operations that need one).
var ErrNotFound = errors.New("registry: preset not found")

// Record re-exports the stored form so callers need not import internal.
type Record = store.Record

// Config configures the registry.
type Config struct {
	// DBPath is the SQLite file. Default: "harvest.db".
	DBPath string
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "harvest.db"
	}
}

// Subscriber receives the snapshot of a newly-activated preset version.
type Subscriber func(*preset.Snapshot)

// Registry is the preset registry service.
type Registry struct {
	store  *store.Store
	logger *slog.Logger

	// mu serializes activation notifications so subscribers observe
	// activations in commit order.
	mu   sync.Mutex
	subs map[string][]Subscriber
}

// New opens the registry database and initialises the schema.
func New(cfg *Config, logger *slog.Logger) (*Registry, error) {
	cfg.defaults()
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return newRegistry(s, logger), nil
}

// NewWithDB wraps an already-open database that has the registry schema
// applied (tests use dbopen.OpenMemory with store.Schema).
func NewWithDB(db *sql.DB, logger *slog.Logger) *Registry {
	return newRegistry(store.NewWithDB(db), logger)
}

func newRegistry(s *store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  s,
		logger: logger,
		subs:   make(map[string][]Subscriber),
	}
}

// Close shuts the registry down and closes the database.
func (r *Registry) Close() error {
	return r.store.Close()
}

// Import validates raw, stores it under its (name, version), and optionally
// activates it. The returned bool reports whether a new version row was
// created; re-importing an identical document is a detectable no-op
// (created false, checksum unchanged). Validation failures are
// *preset.ValidationError values.
func (r *Registry) Import(ctx context.Context, raw []byte, activate bool) (*Record, bool, error) {
	p, doc, err := preset.ValidateBytes(raw)
	if err != nil {
		return nil, false, err
	}
	sum, err := preset.Checksum(doc)
	if err != nil {
		return nil, false, err
	}
	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("registry: canonicalize: %w", err)
	}

	rec := &Record{
		ID:            idgen.New(),
		Name:          p.Name,
		Version:       p.Version,
		SchemaVersion: p.SchemaVersion,
		Title:         p.Title,
		Description:   p.Description,
		Checksum:      sum,
		Config:        string(canonical),
	}

	created, err := r.store.Upsert(ctx, rec, activate)
	if err != nil {
		return nil, false, err
	}

	r.logger.Info("registry: preset imported",
		"preset", rec.Name, "version", rec.Version,
		"created", created, "activated", activate, "checksum", sum)

	if activate {
		r.notify(rec)
	}
	return rec, created, nil
}

// Get retrieves one stored version.
func (r *Registry) Get(ctx context.Context, name, version string) (*Record, error) {
	rec, err := r.store.GetVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, name, version)
	}
	return rec, nil
}

// List returns stored versions, all names when name is empty.
func (r *Registry) List(ctx context.Context, name string) ([]*Record, error) {
	return r.store.List(ctx, name)
}

// Activate makes (name, version) the live version of name and notifies
// subscribers.
func (r *Registry) Activate(ctx context.Context, name, version string) error {
	found, err := r.store.Activate(ctx, name, version)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s@%s", ErrNotFound, name, version)
	}
	r.logger.Info("registry: preset activated", "preset", name, "version", version)

	rec, err := r.store.GetActive(ctx, name)
	if err == nil && rec != nil {
		r.notify(rec)
	}
	return nil
}

// Deactivate takes name offline. Deactivating a name with no active
// version is ErrNotFound.
func (r *Registry) Deactivate(ctx context.Context, name string) error {
	found, err := r.store.Deactivate(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s has no active version", ErrNotFound, name)
	}
	r.logger.Info("registry: preset deactivated", "preset", name)
	return nil
}

// Snapshot returns an immutable deep copy of name's active configuration.
// The config JSON is re-validated into a fresh Preset, so no two snapshots
// share mutable state.
func (r *Registry) Snapshot(ctx context.Context, name string) (*preset.Snapshot, error) {
	rec, err := r.store.GetActive(ctx, name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s has no active version", ErrNotFound, name)
	}
	return r.snapshotOf(rec)
}

// SnapshotVersion returns a snapshot of a specific stored version, active
// or not. Test harness runs use this to evaluate a candidate version
// before activating it.
func (r *Registry) SnapshotVersion(ctx context.Context, name, version string) (*preset.Snapshot, error) {
	rec, err := r.Get(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return r.snapshotOf(rec)
}

func (r *Registry) snapshotOf(rec *Record) (*preset.Snapshot, error) {
	p, _, err := preset.ValidateBytes([]byte(rec.Config))
	if err != nil {
		return nil, fmt.Errorf("registry: stored config for %s@%s no longer validates: %w",
			rec.Name, rec.Version, err)
	}
	return &preset.Snapshot{
		Name:          rec.Name,
		Version:       rec.Version,
		SchemaVersion: rec.SchemaVersion,
		Checksum:      rec.Checksum,
		Config:        p,
	}, nil
}

// Subscribe registers fn for activation events of name. fn is called
// synchronously in activation order with a fresh snapshot each time.
func (r *Registry) Subscribe(name string, fn Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[name] = append(r.subs[name], fn)
}

func (r *Registry) notify(rec *Record) {
	snap, err := r.snapshotOf(rec)
	if err != nil {
		r.logger.Error("registry: snapshot for notification", "preset", rec.Name, "error", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fn := range r.subs[rec.Name] {
		fn(snap)
	}
}
