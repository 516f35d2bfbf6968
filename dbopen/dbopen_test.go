package dbopen

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMemory_SchemaApplied(t *testing.T) {
	// WHAT: WithSchema executes DDL before the database is handed out.
	db := OpenMemory(t, WithSchema(`CREATE TABLE t (id TEXT PRIMARY KEY)`))
	if _, err := db.Exec(`INSERT INTO t (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("count = %d, err = %v", n, err)
	}
}

func TestOpen_ForeignKeysOn(t *testing.T) {
	// WHAT: The foreign_keys pragma is ON by default.
	// WHY: Registry child rows must not outlive their preset.
	db := OpenMemory(t)
	var v int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&v); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if v != 1 {
		t.Errorf("foreign_keys = %d, want 1", v)
	}
}

func TestRunTx_RollbackOnError(t *testing.T) {
	// WHAT: An fn error rolls the transaction back.
	db := OpenMemory(t, WithSchema(`CREATE TABLE t (id TEXT PRIMARY KEY)`))
	err := RunTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t (id) VALUES ('a')`); err != nil {
			return err
		}
		return sql.ErrNoRows // arbitrary failure
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var n int
	db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n)
	if n != 0 {
		t.Errorf("rows = %d after rollback, want 0", n)
	}
}
