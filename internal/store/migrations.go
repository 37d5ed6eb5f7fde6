package store

import (
	"github.com/cockroachdb/errors"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "atoms: nodes and links of every owner's hypergraph",
		SQL: `
CREATE TABLE atoms (
    -- AUTOINCREMENT: ids of deleted atoms are never handed out again
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id       INTEGER NOT NULL,
    kind           TEXT NOT NULL CHECK (kind IN ('node', 'link')),
    type_name      TEXT NOT NULL,
    name           TEXT,
    value          TEXT,

    -- Canonical ordered target list for links, NULL for nodes
    outgoing_key   TEXT,

    tv_strength    REAL NOT NULL DEFAULT 1.0,
    tv_confidence  REAL NOT NULL DEFAULT 1.0,
    av_sti         REAL NOT NULL DEFAULT 0.0,
    av_lti         REAL NOT NULL DEFAULT 0.0,

    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,

    CHECK ((kind = 'node' AND name IS NOT NULL AND outgoing_key IS NULL)
        OR (kind = 'link' AND name IS NULL AND outgoing_key IS NOT NULL))
);

CREATE UNIQUE INDEX idx_atoms_node_identity ON atoms(owner_id, type_name, name);
CREATE UNIQUE INDEX idx_atoms_link_identity ON atoms(owner_id, type_name, outgoing_key);
CREATE INDEX idx_atoms_owner_kind ON atoms(owner_id, kind);
CREATE INDEX idx_atoms_owner_name ON atoms(owner_id, name);
`,
	},
	{
		Version:     2,
		Description: "atom_edges: ordered outgoing sets of links",
		SQL: `
CREATE TABLE atom_edges (
    link_id    INTEGER NOT NULL,
    target_id  INTEGER NOT NULL,
    position   INTEGER NOT NULL CHECK (position >= 0),

    PRIMARY KEY (link_id, position),
    FOREIGN KEY (link_id)   REFERENCES atoms(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES atoms(id) ON DELETE CASCADE
);

CREATE INDEX idx_edges_target ON atom_edges(target_id);
`,
	},
	{
		Version:     3,
		Description: "atom_shares: cross-owner visibility grants",
		SQL: `
CREATE TABLE atom_shares (
    id            INTEGER PRIMARY KEY,
    source_owner  INTEGER NOT NULL,
    target_owner  INTEGER NOT NULL,
    atom_id       INTEGER NOT NULL,
    is_public     INTEGER NOT NULL DEFAULT 0,
    share_type    TEXT NOT NULL DEFAULT 'read' CHECK (share_type IN ('read', 'write', 'copy')),
    created_at    INTEGER NOT NULL,

    CHECK (source_owner != target_owner),
    FOREIGN KEY (atom_id) REFERENCES atoms(id) ON DELETE CASCADE
);

CREATE INDEX idx_shares_pair   ON atom_shares(source_owner, target_owner);
CREATE INDEX idx_shares_target ON atom_shares(target_owner);
CREATE INDEX idx_shares_atom   ON atom_shares(atom_id);
CREATE INDEX idx_shares_public ON atom_shares(is_public);
`,
	},
	{
		Version:     4,
		Description: "saved_queries: stored patterns with cached results",
		SQL: `
CREATE TABLE saved_queries (
    id           INTEGER PRIMARY KEY,
    owner_id     INTEGER NOT NULL,
    pattern      TEXT NOT NULL,
    result       TEXT,
    created_at   INTEGER NOT NULL,
    executed_at  INTEGER
);

CREATE INDEX idx_queries_owner    ON saved_queries(owner_id);
CREATE INDEX idx_queries_executed ON saved_queries(executed_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return errors.Wrap(err, "create schema_versions")
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return errors.Wrapf(err, "check migration %d", m.Version)
		}
		if count > 0 {
			continue
		}

		db.log.Infow("applying migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin migration %d", m.Version)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "migration %d (%s)", m.Version, m.Description)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record migration %d", m.Version)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %d", m.Version)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
