package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const atomColumns = `a.id, a.owner_id, a.kind, a.type_name, a.name, a.value,
	a.tv_strength, a.tv_confidence, a.av_sti, a.av_lti, a.created_at, a.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAtom(s rowScanner) (*Atom, error) {
	var a Atom
	var name, value sql.NullString
	err := s.Scan(&a.ID, &a.OwnerID, &a.Kind, &a.TypeName, &name, &value,
		&a.TV.Strength, &a.TV.Confidence, &a.AV.STI, &a.AV.LTI,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Name = name.String
	if value.Valid {
		a.Value = []byte(value.String)
	}
	return &a, nil
}

// scanAtoms drains rows completely before returning, so callers may issue
// further statements on a single-connection pool.
func scanAtoms(rows *sql.Rows) ([]Atom, error) {
	defer rows.Close()
	var atoms []Atom
	for rows.Next() {
		a, err := scanAtom(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan atom")
		}
		atoms = append(atoms, *a)
	}
	return atoms, rows.Err()
}

// queryAtom returns the single atom matched by where, or nil if none.
func queryAtom(ctx context.Context, q querier, where string, args ...any) (*Atom, error) {
	row := q.QueryRowContext(ctx, `SELECT `+atomColumns+` FROM atoms a WHERE `+where, args...)
	a, err := scanAtom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get atom")
	}
	return a, nil
}

func nullableValue(v []byte) any {
	if v == nil {
		return nil
	}
	return string(v)
}

// --- writes ---

// AddNode finds or creates the node keyed by (owner, typeName, name).
// When the node already exists it is returned unchanged and value/tv are
// ignored. Concurrent identical calls resolve to one record through the
// unique identity index.
func (tx *Tx) AddNode(ctx context.Context, owner int64, typeName, name string, value []byte, tv *TruthValue) (*Atom, error) {
	if !ValidType(KindNode, typeName) {
		return nil, Validationf("invalid node type %q", typeName)
	}
	if strings.TrimSpace(name) == "" {
		return nil, Validationf("name is required for nodes")
	}

	t := DefaultTruthValue
	if tv != nil {
		t = tv.Clamped()
	}
	now := time.Now().UnixMilli()

	var id int64
	err := tx.tx.QueryRowContext(ctx, `
		INSERT INTO atoms (owner_id, kind, type_name, name, value, tv_strength, tv_confidence, created_at, updated_at)
		VALUES (?, 'node', ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id
	`, owner, typeName, name, nullableValue(value), t.Strength, t.Confidence, now, now).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		existing, err := queryAtom(ctx, tx.tx, `a.owner_id = ? AND a.type_name = ? AND a.name = ?`, owner, typeName, name)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.Newf("node %s %q vanished after conflict", typeName, name)
		}
		return existing, nil
	case err != nil:
		return nil, errors.Wrap(err, "insert node")
	}

	tx.log.Debugw("node created", "owner_id", owner, "atom_id", id, "type_name", typeName)
	return &Atom{
		ID:        id,
		OwnerID:   owner,
		Kind:      KindNode,
		TypeName:  typeName,
		Name:      name,
		Value:     value,
		TV:        t,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AddLink finds or creates the link keyed by (owner, typeName, ordered
// outgoing ids). The link row and its edges are written in this
// transaction; a missing target fails the whole call.
func (tx *Tx) AddLink(ctx context.Context, owner int64, typeName string, outgoing []int64, tv *TruthValue) (*Atom, error) {
	if !ValidType(KindLink, typeName) {
		return nil, Validationf("invalid link type %q", typeName)
	}
	if len(outgoing) == 0 {
		return nil, Validationf("outgoing cannot be empty")
	}

	t := DefaultTruthValue
	if tv != nil {
		t = tv.Clamped()
	}
	key := outgoingKey(outgoing)
	now := time.Now().UnixMilli()

	// Insert first so the write lock is taken before any read.
	var id int64
	err := tx.tx.QueryRowContext(ctx, `
		INSERT INTO atoms (owner_id, kind, type_name, outgoing_key, tv_strength, tv_confidence, created_at, updated_at)
		VALUES (?, 'link', ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id
	`, owner, typeName, key, t.Strength, t.Confidence, now, now).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		existing, err := queryAtom(ctx, tx.tx, `a.owner_id = ? AND a.type_name = ? AND a.outgoing_key = ?`, owner, typeName, key)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.Newf("link %s [%s] vanished after conflict", typeName, key)
		}
		return existing, nil
	case err != nil:
		return nil, errors.Wrap(err, "insert link")
	}

	for _, target := range outgoing {
		var exists int
		err := tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM atoms WHERE id = ?`, target).Scan(&exists)
		if err != nil {
			return nil, errors.Wrapf(err, "check outgoing atom %d", target)
		}
		if exists == 0 {
			return nil, NotFoundf("outgoing atom %d not found", target)
		}
	}

	for pos, target := range outgoing {
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT INTO atom_edges (link_id, target_id, position) VALUES (?, ?, ?)
		`, id, target, pos); err != nil {
			return nil, errors.Wrapf(err, "insert edge %d of link %d", pos, id)
		}
	}

	tx.log.Debugw("link created", "owner_id", owner, "atom_id", id, "type_name", typeName, "arity", len(outgoing))
	return &Atom{
		ID:        id,
		OwnerID:   owner,
		Kind:      KindLink,
		TypeName:  typeName,
		TV:        t,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetAtom returns the owner's atom with the given id, or nil.
func (tx *Tx) GetAtom(ctx context.Context, owner, id int64) (*Atom, error) {
	return queryAtom(ctx, tx.tx, `a.id = ? AND a.owner_id = ?`, id, owner)
}

// DeleteAtom removes the owner's atom. Edges in both directions and shares
// referencing it go with it via foreign key cascades, and every link that
// listed it is re-keyed by its remaining outgoing sequence (see
// reconcileLinks). Returns false if the atom does not exist or belongs to
// another owner.
func (tx *Tx) DeleteAtom(ctx context.Context, owner, id int64) (bool, error) {
	parents, err := tx.incomingIDs(ctx, id)
	if err != nil {
		return false, err
	}
	res, err := tx.tx.ExecContext(ctx, `DELETE FROM atoms WHERE id = ? AND owner_id = ?`, id, owner)
	if err != nil {
		return false, errors.Wrap(err, "delete atom")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "delete atom rows affected")
	}
	if n == 0 {
		return false, nil
	}
	if err := tx.reconcileLinks(ctx, parents); err != nil {
		return false, err
	}
	return true, nil
}

// reconcileLinks restores link identity after edges were cascaded away.
// Each queued link gets the key of its current outgoing sequence:
//   - a link left with no edges is deleted, and its own parents are queued;
//   - a link whose new key is already held by another link of the same
//     owner and type is merged into that link: edges and shares pointing at
//     it are moved to the holder, it is deleted, and its parents (now
//     pointing at the holder) are queued.
//
// Links are processed in id order, so the older link keeps the identity.
func (tx *Tx) reconcileLinks(ctx context.Context, queue []int64) error {
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		var owner int64
		var typeName string
		var key sql.NullString
		err := tx.tx.QueryRowContext(ctx, `
			SELECT owner_id, type_name, outgoing_key FROM atoms WHERE id = ? AND kind = 'link'
		`, id).Scan(&owner, &typeName, &key)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "read link %d", id)
		}

		targets, err := tx.edgeTargets(ctx, id)
		if err != nil {
			return err
		}

		if len(targets) == 0 {
			parents, err := tx.incomingIDs(ctx, id)
			if err != nil {
				return err
			}
			if _, err := tx.tx.ExecContext(ctx, `DELETE FROM atoms WHERE id = ?`, id); err != nil {
				return errors.Wrapf(err, "delete empty link %d", id)
			}
			tx.log.Debugw("empty link removed", "atom_id", id)
			queue = append(queue, parents...)
			continue
		}

		newKey := outgoingKey(targets)
		if key.String == newKey {
			continue
		}

		var holder int64
		err = tx.tx.QueryRowContext(ctx, `
			SELECT id FROM atoms WHERE owner_id = ? AND type_name = ? AND outgoing_key = ? AND id != ?
		`, owner, typeName, newKey, id).Scan(&holder)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.tx.ExecContext(ctx, `
				UPDATE atoms SET outgoing_key = ?, updated_at = ? WHERE id = ?
			`, newKey, time.Now().UnixMilli(), id); err != nil {
				return errors.Wrapf(err, "re-key link %d", id)
			}
			continue
		case err != nil:
			return errors.Wrapf(err, "find holder of link key %s", newKey)
		}

		parents, err := tx.incomingIDs(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.tx.ExecContext(ctx, `UPDATE atom_edges SET target_id = ? WHERE target_id = ?`, holder, id); err != nil {
			return errors.Wrapf(err, "move edges of link %d", id)
		}
		if _, err := tx.tx.ExecContext(ctx, `UPDATE atom_shares SET atom_id = ? WHERE atom_id = ?`, holder, id); err != nil {
			return errors.Wrapf(err, "move shares of link %d", id)
		}
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM atoms WHERE id = ?`, id); err != nil {
			return errors.Wrapf(err, "delete merged link %d", id)
		}
		tx.log.Debugw("link merged", "atom_id", id, "into", holder)
		queue = append(queue, parents...)
	}
	return nil
}

// incomingIDs lists the links with an edge to id, oldest first.
func (tx *Tx) incomingIDs(ctx context.Context, id int64) ([]int64, error) {
	return tx.int64s(ctx, `SELECT DISTINCT link_id FROM atom_edges WHERE target_id = ? ORDER BY link_id`, id)
}

// edgeTargets lists a link's targets in position order.
func (tx *Tx) edgeTargets(ctx context.Context, linkID int64) ([]int64, error) {
	return tx.int64s(ctx, `SELECT target_id FROM atom_edges WHERE link_id = ? ORDER BY position`, linkID)
}

func (tx *Tx) int64s(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query ids")
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetTruthValue updates the owner's atom truth value, clamped into [0,1].
func (tx *Tx) SetTruthValue(ctx context.Context, owner, id int64, tv TruthValue) (bool, error) {
	tv = tv.Clamped()
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE atoms SET tv_strength = ?, tv_confidence = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, tv.Strength, tv.Confidence, time.Now().UnixMilli(), id, owner)
	if err != nil {
		return false, errors.Wrap(err, "set truth value")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetAttentionValue updates the owner's atom attention value.
func (tx *Tx) SetAttentionValue(ctx context.Context, owner, id int64, av AttentionValue) (bool, error) {
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE atoms SET av_sti = ?, av_lti = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, av.STI, av.LTI, time.Now().UnixMilli(), id, owner)
	if err != nil {
		return false, errors.Wrap(err, "set attention value")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddNode runs Tx.AddNode in its own transaction.
func (db *DB) AddNode(ctx context.Context, owner int64, typeName, name string, value []byte, tv *TruthValue) (*Atom, error) {
	var atom *Atom
	err := db.Update(ctx, func(tx *Tx) error {
		var err error
		atom, err = tx.AddNode(ctx, owner, typeName, name, value, tv)
		return err
	})
	return atom, err
}

// AddLink runs Tx.AddLink in its own transaction.
func (db *DB) AddLink(ctx context.Context, owner int64, typeName string, outgoing []int64, tv *TruthValue) (*Atom, error) {
	var atom *Atom
	err := db.Update(ctx, func(tx *Tx) error {
		var err error
		atom, err = tx.AddLink(ctx, owner, typeName, outgoing, tv)
		return err
	})
	return atom, err
}

// DeleteAtom runs Tx.DeleteAtom in its own transaction.
func (db *DB) DeleteAtom(ctx context.Context, owner, id int64) (bool, error) {
	var ok bool
	err := db.Update(ctx, func(tx *Tx) error {
		var err error
		ok, err = tx.DeleteAtom(ctx, owner, id)
		return err
	})
	return ok, err
}

// SetTruthValue runs Tx.SetTruthValue in its own transaction.
func (db *DB) SetTruthValue(ctx context.Context, owner, id int64, tv TruthValue) (bool, error) {
	var ok bool
	err := db.Update(ctx, func(tx *Tx) error {
		var err error
		ok, err = tx.SetTruthValue(ctx, owner, id, tv)
		return err
	})
	return ok, err
}

// SetAttentionValue runs Tx.SetAttentionValue in its own transaction.
func (db *DB) SetAttentionValue(ctx context.Context, owner, id int64, av AttentionValue) (bool, error) {
	var ok bool
	err := db.Update(ctx, func(tx *Tx) error {
		var err error
		ok, err = tx.SetAttentionValue(ctx, owner, id, av)
		return err
	})
	return ok, err
}

// --- reads ---

// GetAtom returns the owner's atom with the given id, or nil if it does not
// exist or belongs to another owner.
func (db *DB) GetAtom(ctx context.Context, owner, id int64) (*Atom, error) {
	return queryAtom(ctx, db, `a.id = ? AND a.owner_id = ?`, id, owner)
}

// AtomByID returns an atom regardless of owner. Used to resolve shared atoms
// after the share itself has been authorized.
func (db *DB) AtomByID(ctx context.Context, id int64) (*Atom, error) {
	return queryAtom(ctx, db, `a.id = ?`, id)
}

// FindNode returns the owner's node with the given identity, or nil.
func (db *DB) FindNode(ctx context.Context, owner int64, typeName, name string) (*Atom, error) {
	return queryAtom(ctx, db, `a.owner_id = ? AND a.kind = 'node' AND a.type_name = ? AND a.name = ?`, owner, typeName, name)
}

// FindLink returns the owner's link of typeName whose ordered outgoing
// sequence equals outgoing, or nil.
func (db *DB) FindLink(ctx context.Context, owner int64, typeName string, outgoing []int64) (*Atom, error) {
	return queryAtom(ctx, db, `a.owner_id = ? AND a.type_name = ? AND a.outgoing_key = ?`, owner, typeName, outgoingKey(outgoing))
}

// ListOpts filters and paginates ListAtoms.
type ListOpts struct {
	TypeName string
	Limit    int
	Offset   int
}

// ListAtoms returns a page of the owner's atoms in id order.
func (db *DB) ListAtoms(ctx context.Context, owner int64, opts ListOpts) ([]Atom, error) {
	query := `SELECT ` + atomColumns + ` FROM atoms a WHERE a.owner_id = ?`
	args := []any{owner}
	if opts.TypeName != "" {
		query += ` AND a.type_name = ?`
		args = append(args, opts.TypeName)
	}
	query += ` ORDER BY a.id LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list atoms")
	}
	return scanAtoms(rows)
}

// AllAtoms returns every atom owned by owner, up to limit, in id order.
func (db *DB) AllAtoms(ctx context.Context, owner int64, limit int) ([]Atom, error) {
	return db.ListAtoms(ctx, owner, ListOpts{Limit: limit})
}

// Outgoing resolves a link's edges in position order. Targets that no longer
// exist are skipped. Nodes have no edges and yield nil.
func (db *DB) Outgoing(ctx context.Context, linkID int64) ([]Atom, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+atomColumns+`
		FROM atom_edges e JOIN atoms a ON a.id = e.target_id
		WHERE e.link_id = ?
		ORDER BY e.position
	`, linkID)
	if err != nil {
		return nil, errors.Wrap(err, "outgoing")
	}
	return scanAtoms(rows)
}

// Incoming returns every link that lists atomID in its outgoing set, each
// link once, in id order.
func (db *DB) Incoming(ctx context.Context, atomID int64) ([]Atom, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT `+atomColumns+`
		FROM atom_edges e JOIN atoms a ON a.id = e.link_id
		WHERE e.target_id = ?
		ORDER BY a.id
	`, atomID)
	if err != nil {
		return nil, errors.Wrap(err, "incoming")
	}
	return scanAtoms(rows)
}

// OutgoingIndex maps each of the owner's links to its current ordered target
// ids. Used by export, which needs every link's edges at once.
func (db *DB) OutgoingIndex(ctx context.Context, owner int64) (map[int64][]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT e.link_id, e.target_id
		FROM atom_edges e JOIN atoms a ON a.id = e.link_id
		WHERE a.owner_id = ?
		ORDER BY e.link_id, e.position
	`, owner)
	if err != nil {
		return nil, errors.Wrap(err, "outgoing index")
	}
	defer rows.Close()

	index := make(map[int64][]int64)
	for rows.Next() {
		var linkID, targetID int64
		if err := rows.Scan(&linkID, &targetID); err != nil {
			return nil, errors.Wrap(err, "scan edge")
		}
		index[linkID] = append(index[linkID], targetID)
	}
	return index, rows.Err()
}

// Stats are aggregate counts scoped to one owner.
type Stats struct {
	TotalAtoms       int            `json:"total_atoms"`
	NodeCount        int            `json:"node_count"`
	LinkCount        int            `json:"link_count"`
	TypeDistribution map[string]int `json:"type_distribution"`
	SharedOut        int            `json:"shared_out"`
	SharedIn         int            `json:"shared_in"`
}

// Stats computes the owner's atom and share counts.
func (db *DB) Stats(ctx context.Context, owner int64) (*Stats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kind, type_name, COUNT(*) FROM atoms WHERE owner_id = ? GROUP BY kind, type_name
	`, owner)
	if err != nil {
		return nil, errors.Wrap(err, "count atoms")
	}

	st := &Stats{TypeDistribution: make(map[string]int)}
	for rows.Next() {
		var kind Kind
		var typeName string
		var n int
		if err := rows.Scan(&kind, &typeName, &n); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan type count")
		}
		st.TypeDistribution[typeName] = n
		st.TotalAtoms += n
		if kind == KindNode {
			st.NodeCount += n
		} else {
			st.LinkCount += n
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM atom_shares WHERE source_owner = ?`, owner).Scan(&st.SharedOut); err != nil {
		return nil, errors.Wrap(err, "count shares out")
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM atom_shares WHERE target_owner = ?`, owner).Scan(&st.SharedIn); err != nil {
		return nil, errors.Wrap(err, "count shares in")
	}
	return st, nil
}

// OwnerSummary describes one knowledge base for browsing.
type OwnerSummary struct {
	OwnerID     int64 `json:"owner_id"`
	AtomCount   int   `json:"atom_count"`
	LastUpdated int64 `json:"last_updated"`
}

// ListOwners returns the owners holding at least one atom, most recently
// updated first.
func (db *DB) ListOwners(ctx context.Context, limit int) ([]OwnerSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT owner_id, COUNT(*), MAX(updated_at)
		FROM atoms GROUP BY owner_id
		ORDER BY MAX(updated_at) DESC, owner_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list owners")
	}
	defer rows.Close()

	var owners []OwnerSummary
	for rows.Next() {
		var o OwnerSummary
		if err := rows.Scan(&o.OwnerID, &o.AtomCount, &o.LastUpdated); err != nil {
			return nil, errors.Wrap(err, "scan owner")
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}
