package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// ShareType is the permission a share grants to its target owner.
type ShareType string

const (
	ShareRead  ShareType = "read"
	ShareWrite ShareType = "write"
	ShareCopy  ShareType = "copy"
)

// Valid reports whether t is one of read, write, copy.
func (t ShareType) Valid() bool {
	return t == ShareRead || t == ShareWrite || t == ShareCopy
}

// Share grants target_owner visibility of one atom owned by source_owner.
type Share struct {
	ID          int64     `json:"id"`
	SourceOwner int64     `json:"source_owner_id"`
	TargetOwner int64     `json:"target_owner_id"`
	AtomID      int64     `json:"atom_id"`
	IsPublic    bool      `json:"is_public"`
	ShareType   ShareType `json:"share_type"`
	CreatedAt   int64     `json:"created_at"`
}

// CanRead is true for every share type.
func (s *Share) CanRead() bool { return s.ShareType.Valid() }

// CanWrite is true only for write shares.
func (s *Share) CanWrite() bool { return s.ShareType == ShareWrite }

const shareColumns = `id, source_owner, target_owner, atom_id, is_public, share_type, created_at`

func scanShare(s rowScanner) (*Share, error) {
	var sh Share
	var public int
	if err := s.Scan(&sh.ID, &sh.SourceOwner, &sh.TargetOwner, &sh.AtomID, &public, &sh.ShareType, &sh.CreatedAt); err != nil {
		return nil, err
	}
	sh.IsPublic = public != 0
	return &sh, nil
}

// CreateShare records a share of the source owner's atom. The atom must be
// owned by source; self-shares and unknown share types are rejected.
func (tx *Tx) CreateShare(ctx context.Context, source, target, atomID int64, shareType ShareType, isPublic bool) (*Share, error) {
	if !shareType.Valid() {
		return nil, Validationf("share_type must be read, write, or copy, got %q", shareType)
	}
	if target == source {
		return nil, Validationf("cannot share an atom with its own owner")
	}
	if target <= 0 {
		return nil, Validationf("target owner is required")
	}

	atom, err := tx.GetAtom(ctx, source, atomID)
	if err != nil {
		return nil, err
	}
	if atom == nil {
		return nil, NotFoundf("atom %d not found", atomID)
	}

	now := time.Now().UnixMilli()
	public := 0
	if isPublic {
		public = 1
	}
	res, err := tx.tx.ExecContext(ctx, `
		INSERT INTO atom_shares (source_owner, target_owner, atom_id, is_public, share_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, source, target, atomID, public, string(shareType), now)
	if err != nil {
		return nil, errors.Wrap(err, "insert share")
	}
	id, _ := res.LastInsertId()

	tx.log.Debugw("atom shared", "atom_id", atomID, "source_owner", source, "target_owner", target, "share_type", shareType)
	return &Share{
		ID:          id,
		SourceOwner: source,
		TargetOwner: target,
		AtomID:      atomID,
		IsPublic:    isPublic,
		ShareType:   shareType,
		CreatedAt:   now,
	}, nil
}

// CopyAtom duplicates the shared atom into the share's target owner. Nodes
// are found-or-created by the target's identity key. Links get a fresh edge
// list pointing at the original targets, not at copies of them.
func (tx *Tx) CopyAtom(ctx context.Context, share *Share) (*Atom, error) {
	if share.ShareType != ShareCopy {
		return nil, Validationf("share %d is a %s share, not copy", share.ID, share.ShareType)
	}

	src, err := tx.GetAtom(ctx, share.SourceOwner, share.AtomID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, NotFoundf("atom %d not found", share.AtomID)
	}

	if src.IsNode() {
		return tx.AddNode(ctx, share.TargetOwner, src.TypeName, src.Name, src.Value, &src.TV)
	}

	rows, err := tx.tx.QueryContext(ctx, `
		SELECT target_id FROM atom_edges WHERE link_id = ? ORDER BY position
	`, src.ID)
	if err != nil {
		return nil, errors.Wrap(err, "read source edges")
	}
	var targets []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan source edge")
		}
		targets = append(targets, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	link, err := tx.AddLink(ctx, share.TargetOwner, src.TypeName, targets, &src.TV)
	if err != nil {
		return nil, err
	}
	if src.Value != nil {
		if _, err := tx.tx.ExecContext(ctx, `UPDATE atoms SET value = ? WHERE id = ? AND value IS NULL`, string(src.Value), link.ID); err != nil {
			return nil, errors.Wrap(err, "copy link value")
		}
	}
	return link, nil
}

// GetShare returns a share by id, or nil.
func (db *DB) GetShare(ctx context.Context, id int64) (*Share, error) {
	row := db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM atom_shares WHERE id = ?`, id)
	sh, err := scanShare(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get share")
	}
	return sh, nil
}

// SharesOf returns the shares that reference atomID and are either targeted
// at actor or public.
func (db *DB) SharesOf(ctx context.Context, atomID, actor int64) ([]Share, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+shareColumns+` FROM atom_shares
		WHERE atom_id = ? AND (target_owner = ? OR is_public = 1)
		ORDER BY id
	`, atomID, actor)
	if err != nil {
		return nil, errors.Wrap(err, "shares of atom")
	}
	defer rows.Close()

	var shares []Share
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan share")
		}
		shares = append(shares, *sh)
	}
	return shares, rows.Err()
}

// SharedAtoms returns the distinct atoms shared to target, optionally only
// those shared by source (source <= 0 means any).
func (db *DB) SharedAtoms(ctx context.Context, target, source int64) ([]Atom, error) {
	query := `
		SELECT ` + atomColumns + ` FROM atoms a
		WHERE a.id IN (SELECT atom_id FROM atom_shares WHERE target_owner = ?`
	args := []any{target}
	if source > 0 {
		query += ` AND source_owner = ?`
		args = append(args, source)
	}
	query += `) ORDER BY a.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "shared atoms")
	}
	return scanAtoms(rows)
}

// PublicAtoms returns up to limit distinct atoms that have at least one
// public share, across all owners.
func (db *DB) PublicAtoms(ctx context.Context, limit int) ([]Atom, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+atomColumns+` FROM atoms a
		WHERE a.id IN (SELECT atom_id FROM atom_shares WHERE is_public = 1)
		ORDER BY a.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "public atoms")
	}
	return scanAtoms(rows)
}

// CreateShare runs Tx.CreateShare in its own transaction.
func (db *DB) CreateShare(ctx context.Context, source, target, atomID int64, shareType ShareType, isPublic bool) (*Share, error) {
	var sh *Share
	err := db.Update(ctx, func(tx *Tx) error {
		var err error
		sh, err = tx.CreateShare(ctx, source, target, atomID, shareType, isPublic)
		return err
	})
	return sh, err
}

// CopyAtom runs Tx.CopyAtom in its own transaction.
func (db *DB) CopyAtom(ctx context.Context, share *Share) (*Atom, error) {
	var atom *Atom
	err := db.Update(ctx, func(tx *Tx) error {
		var err error
		atom, err = tx.CopyAtom(ctx, share)
		return err
	})
	return atom, err
}
