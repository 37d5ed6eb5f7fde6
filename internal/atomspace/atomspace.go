// Package atomspace is the owner-scoped view of the hypergraph store. Every
// operation runs as one owner (an agent's knowledge base); cross-owner
// access goes through shares.
package atomspace

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lazypower/atomspace/internal/store"
)

// Limits bound listing and export sizes at the caller-facing boundary.
type Limits struct {
	DefaultPage int // page size when the caller gives none
	MaxPage     int
	MaxPublic   int
	ExportCap   int // safety cap on export and pattern scans
}

// DefaultLimits are used when Options.Limits is zero.
var DefaultLimits = Limits{
	DefaultPage: 100,
	MaxPage:     1000,
	MaxPublic:   100,
	ExportCap:   100000,
}

// Options configure an AtomSpace.
type Options struct {
	Logger *zap.SugaredLogger
	Limits Limits
}

// AtomSpace is one owner's knowledge base.
type AtomSpace struct {
	db     *store.DB
	owner  int64
	log    *zap.SugaredLogger
	limits Limits
}

// New returns the atomspace of owner backed by db.
func New(db *store.DB, owner int64, opts Options) *AtomSpace {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	limits := opts.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits
	}
	return &AtomSpace{
		db:     db,
		owner:  owner,
		log:    log.With("owner_id", owner),
		limits: limits,
	}
}

// Owner returns the owner id this atomspace acts as.
func (as *AtomSpace) Owner() int64 { return as.owner }

// ClampLimit returns n forced into [1, max]; n <= 0 selects def.
func ClampLimit(n, def, max int) int {
	if n <= 0 {
		n = def
	}
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// AddNode finds or creates a node. value may be any JSON-encodable payload,
// a raw JSON message, or a string stored verbatim.
func (as *AtomSpace) AddNode(ctx context.Context, typeName, name string, value any, tv *store.TruthValue) (*store.Atom, error) {
	raw, err := store.EncodeValue(value)
	if err != nil {
		return nil, err
	}
	return as.db.AddNode(ctx, as.owner, typeName, name, raw, tv)
}

// AddLink finds or creates a link. Every outgoing atom must be readable by
// this owner: its own, or shared to it, or public.
func (as *AtomSpace) AddLink(ctx context.Context, typeName string, outgoing []int64, tv *store.TruthValue) (*store.Atom, error) {
	if !store.ValidType(store.KindLink, typeName) {
		return nil, store.Validationf("invalid link type %q", typeName)
	}
	if len(outgoing) == 0 {
		return nil, store.Validationf("outgoing cannot be empty")
	}
	for _, id := range outgoing {
		if _, _, err := as.Resolve(ctx, id); err != nil {
			return nil, err
		}
	}
	return as.db.AddLink(ctx, as.owner, typeName, outgoing, tv)
}

// GetAtom returns one of the owner's atoms. Atoms of other owners are
// reported as not found.
func (as *AtomSpace) GetAtom(ctx context.Context, id int64) (*store.Atom, error) {
	a, err := as.db.GetAtom(ctx, as.owner, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.NotFoundf("atom %d not found", id)
	}
	return a, nil
}

// Resolve returns an atom the owner can at least read, along with the
// permission it holds on it.
func (as *AtomSpace) Resolve(ctx context.Context, id int64) (*store.Atom, Permission, error) {
	a, err := as.db.GetAtom(ctx, as.owner, id)
	if err != nil {
		return nil, PermNone, err
	}
	if a != nil {
		return a, PermWrite, nil
	}

	a, err = as.db.AtomByID(ctx, id)
	if err != nil {
		return nil, PermNone, err
	}
	if a == nil {
		return nil, PermNone, store.NotFoundf("atom %d not found", id)
	}
	perm, err := as.Permission(ctx, a)
	if err != nil {
		return nil, PermNone, err
	}
	if perm == PermNone {
		return nil, PermNone, store.NotFoundf("atom %d not found", id)
	}
	return a, perm, nil
}

// DeleteAtom removes one of the owner's atoms and everything that
// references it. Returns false if nothing was deleted.
func (as *AtomSpace) DeleteAtom(ctx context.Context, id int64) (bool, error) {
	ok, err := as.db.DeleteAtom(ctx, as.owner, id)
	if err != nil {
		return false, err
	}
	if ok {
		as.log.Debugw("atom deleted", "atom_id", id)
	}
	return ok, nil
}

// GetAtoms pages through the owner's atoms, optionally of one type.
// limit is clamped into [1, MaxPage] and a negative offset is treated as 0.
func (as *AtomSpace) GetAtoms(ctx context.Context, typeName string, limit, offset int) ([]store.Atom, error) {
	if offset < 0 {
		offset = 0
	}
	return as.db.ListAtoms(ctx, as.owner, store.ListOpts{
		TypeName: typeName,
		Limit:    ClampLimit(limit, as.limits.DefaultPage, as.limits.MaxPage),
		Offset:   offset,
	})
}

// Outgoing returns a link's targets in argument order. Nodes have none.
func (as *AtomSpace) Outgoing(ctx context.Context, a *store.Atom) ([]store.Atom, error) {
	if a.IsNode() {
		return nil, nil
	}
	return as.db.Outgoing(ctx, a.ID)
}

// Incoming returns the owner's links that reference a.
func (as *AtomSpace) Incoming(ctx context.Context, a *store.Atom) ([]store.Atom, error) {
	all, err := as.db.Incoming(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	owned := all[:0]
	for _, l := range all {
		if l.OwnerID == as.owner {
			owned = append(owned, l)
		}
	}
	return owned, nil
}

// SetTruthValue updates an atom's truth value. Owners and holders of a
// write share may update it.
func (as *AtomSpace) SetTruthValue(ctx context.Context, id int64, tv store.TruthValue) (bool, error) {
	a, err := as.writable(ctx, id)
	if err != nil || a == nil {
		return false, err
	}
	return as.db.SetTruthValue(ctx, a.OwnerID, id, tv)
}

// SetAttentionValue updates an atom's attention value. Owners and holders
// of a write share may update it.
func (as *AtomSpace) SetAttentionValue(ctx context.Context, id int64, av store.AttentionValue) (bool, error) {
	a, err := as.writable(ctx, id)
	if err != nil || a == nil {
		return false, err
	}
	return as.db.SetAttentionValue(ctx, a.OwnerID, id, av)
}

// writable returns the atom if this owner may write it, nil if the atom is
// unknown or only readable.
func (as *AtomSpace) writable(ctx context.Context, id int64) (*store.Atom, error) {
	a, perm, err := as.Resolve(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if perm != PermWrite {
		return nil, nil
	}
	return a, nil
}

// Stats returns the owner's aggregate counts.
func (as *AtomSpace) Stats(ctx context.Context) (*store.Stats, error) {
	return as.db.Stats(ctx, as.owner)
}
