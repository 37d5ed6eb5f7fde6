package atomspace

import (
	"context"

	"github.com/lazypower/atomspace/internal/store"
)

// Permission is what an owner may do with an atom.
type Permission string

const (
	PermNone  Permission = "none"
	PermRead  Permission = "read"
	PermWrite Permission = "write"
)

// Permission derives this owner's access to a. Owners always have write.
// A write share targeted at the owner grants write; any share targeted at
// the owner, or any public share, grants read.
func (as *AtomSpace) Permission(ctx context.Context, a *store.Atom) (Permission, error) {
	if a.OwnerID == as.owner {
		return PermWrite, nil
	}
	shares, err := as.db.SharesOf(ctx, a.ID, as.owner)
	if err != nil {
		return PermNone, err
	}

	perm := PermNone
	for i := range shares {
		sh := &shares[i]
		if sh.TargetOwner == as.owner && sh.CanWrite() {
			return PermWrite, nil
		}
		if sh.CanRead() {
			perm = PermRead
		}
	}
	return perm, nil
}

// ShareAtom grants target access to one of this owner's atoms. An empty
// shareType means read.
func (as *AtomSpace) ShareAtom(ctx context.Context, atomID, target int64, shareType store.ShareType, public bool) (*store.Share, error) {
	if shareType == "" {
		shareType = store.ShareRead
	}
	sh, err := as.db.CreateShare(ctx, as.owner, target, atomID, shareType, public)
	if err != nil {
		return nil, err
	}
	as.log.Infow("atom shared", "atom_id", atomID, "target_owner", target, "share_type", shareType, "public", public)
	return sh, nil
}

// SharedAtoms returns the atoms other owners have shared to this owner,
// optionally only those from source (source <= 0 means any).
func (as *AtomSpace) SharedAtoms(ctx context.Context, source int64) ([]store.Atom, error) {
	return as.db.SharedAtoms(ctx, as.owner, source)
}

// PublicAtoms returns atoms with a public share, across all owners.
// limit is clamped into [1, MaxPublic].
func (as *AtomSpace) PublicAtoms(ctx context.Context, limit int) ([]store.Atom, error) {
	return as.db.PublicAtoms(ctx, ClampLimit(limit, as.limits.MaxPublic, as.limits.MaxPublic))
}

// CopyShared duplicates the atom of a copy share into this owner's
// knowledge base. Only the share's target may copy.
func (as *AtomSpace) CopyShared(ctx context.Context, shareID int64) (*store.Atom, error) {
	sh, err := as.db.GetShare(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if sh == nil || sh.TargetOwner != as.owner {
		return nil, store.NotFoundf("share %d not found", shareID)
	}
	a, err := as.db.CopyAtom(ctx, sh)
	if err != nil {
		return nil, err
	}
	as.log.Infow("shared atom copied", "share_id", shareID, "source_atom_id", sh.AtomID, "atom_id", a.ID)
	return a, nil
}
