package store

// Schema contains the complete DDL for the registry tables.
const Schema = `
-- Preset versions: one row per (name, version). The config column holds the
-- canonical JSON document the checksum was computed over.
CREATE TABLE IF NOT EXISTS presets (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    version        TEXT NOT NULL,
    schema_version INTEGER NOT NULL,
    title          TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    checksum       TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'inactive',
    config         TEXT NOT NULL,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,
    UNIQUE(name, version)
);
CREATE INDEX IF NOT EXISTS idx_presets_name ON presets(name);

-- At most one active version per name, enforced by the database itself.
CREATE UNIQUE INDEX IF NOT EXISTS idx_presets_one_active
    ON presets(name) WHERE status = 'active';
`
