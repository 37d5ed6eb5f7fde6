package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "atomspace.db")
	db, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}

	// Reopening runs no migration twice.
	db.Close()
	db, err = Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	v, _ := db.SchemaVersion()
	if v != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", v, len(migrations))
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 4 {
		t.Errorf("SchemaVersion = %d, want 4", v)
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"schema_versions", "atoms", "atom_edges", "atom_shares", "saved_queries"}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestAtomsConstraints(t *testing.T) {
	db := testDB(t)

	// Invalid kind should fail
	_, err := db.Exec(`
		INSERT INTO atoms (owner_id, kind, type_name, name, created_at, updated_at)
		VALUES (1, 'edge', 'ConceptNode', 'x', 0, 0)
	`)
	if err == nil {
		t.Error("expected error for invalid kind")
	}

	// A link must not carry a name
	_, err = db.Exec(`
		INSERT INTO atoms (owner_id, kind, type_name, name, outgoing_key, created_at, updated_at)
		VALUES (1, 'link', 'ListLink', 'x', '1', 0, 0)
	`)
	if err == nil {
		t.Error("expected error for named link")
	}

	// Self-share should fail
	_, err = db.Exec(`
		INSERT INTO atoms (owner_id, kind, type_name, name, created_at, updated_at)
		VALUES (1, 'node', 'ConceptNode', 'x', 0, 0)
	`)
	if err != nil {
		t.Fatalf("insert atom: %v", err)
	}
	_, err = db.Exec(`
		INSERT INTO atom_shares (source_owner, target_owner, atom_id, share_type, created_at)
		VALUES (1, 1, 1, 'read', 0)
	`)
	if err == nil {
		t.Error("expected error for self-share")
	}
}

func TestWriteTransactionLocksOnBegin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.db")
	db, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	mustNode(t, db, 1, "ConceptNode", "A")

	other, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(0)")
	if err != nil {
		t.Fatalf("open second connection: %v", err)
	}
	defer other.Close()

	ctx := context.Background()
	err = db.Update(ctx, func(tx *Tx) error {
		if _, err := other.ExecContext(ctx, `UPDATE atoms SET av_sti = 1`); err == nil {
			t.Error("second writer got in while a write transaction was open")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := other.ExecContext(ctx, `UPDATE atoms SET av_sti = 1`); err != nil {
		t.Errorf("write after commit: %v", err)
	}
}
