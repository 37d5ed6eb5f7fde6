package atomspace

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/lazypower/atomspace/internal/store"
)

// AtomView is the external projection of an atom.
type AtomView struct {
	ID        int64                `json:"id"`
	AtomType  store.Kind           `json:"atom_type"`
	TypeName  string               `json:"type_name"`
	Name      *string              `json:"name"`
	Value     any                  `json:"value"`
	TV        store.TruthValue     `json:"tv"`
	AV        store.AttentionValue `json:"av"`
	Outgoing  []int64              `json:"outgoing"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewView projects a. outgoing is used only for links; a link always gets a
// non-null list.
func NewView(a *store.Atom, outgoing []int64) AtomView {
	v := AtomView{
		ID:        a.ID,
		AtomType:  a.Kind,
		TypeName:  a.TypeName,
		Value:     a.DecodedValue(),
		TV:        a.TV,
		AV:        a.AV,
		CreatedAt: time.UnixMilli(a.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(a.UpdatedAt).UTC(),
	}
	if a.IsNode() {
		name := a.Name
		v.Name = &name
	} else {
		v.Outgoing = outgoing
		if v.Outgoing == nil {
			v.Outgoing = []int64{}
		}
	}
	return v
}

// View projects a single atom, resolving a link's outgoing ids.
func (as *AtomSpace) View(ctx context.Context, a *store.Atom) (AtomView, error) {
	out, err := as.Outgoing(ctx, a)
	if err != nil {
		return AtomView{}, err
	}
	var ids []int64
	if a.IsLink() {
		ids = make([]int64, len(out))
		for i := range out {
			ids[i] = out[i].ID
		}
	}
	return NewView(a, ids), nil
}

// Views projects a batch of the owner's atoms, resolving link edges with a
// single query.
func (as *AtomSpace) Views(ctx context.Context, atoms []store.Atom) ([]AtomView, error) {
	index, err := as.db.OutgoingIndex(ctx, as.owner)
	if err != nil {
		return nil, err
	}
	views := make([]AtomView, len(atoms))
	for i := range atoms {
		views[i] = NewView(&atoms[i], index[atoms[i].ID])
	}
	return views, nil
}

// Export is the serialized knowledge base of one owner.
type Export struct {
	OwnerID   int64      `json:"owner_id"`
	AtomCount int        `json:"atom_count"`
	Atoms     []AtomView `json:"atoms"`
}

// Export serializes every atom the owner holds, up to ExportCap.
func (as *AtomSpace) Export(ctx context.Context) (*Export, error) {
	atoms, err := as.db.AllAtoms(ctx, as.owner, as.limits.ExportCap)
	if err != nil {
		return nil, err
	}
	views, err := as.Views(ctx, atoms)
	if err != nil {
		return nil, err
	}
	as.log.Infow("atomspace exported", "atom_count", len(views))
	return &Export{OwnerID: as.owner, AtomCount: len(views), Atoms: views}, nil
}

// sourceID is an atom id from an import payload. Ids belong to the store
// that produced the payload, so they are only compared, never reused. JSON
// numbers and strings are both accepted.
type sourceID string

func (s *sourceID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = sourceID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return store.Importf("atom id must be a number or string, got %s", b)
	}
	*s = sourceID(n.String())
	return nil
}

type importEntry struct {
	ID       sourceID          `json:"id"`
	AtomType store.Kind        `json:"atom_type"`
	TypeName string            `json:"type_name"`
	Name     *string           `json:"name"`
	Value    json.RawMessage   `json:"value"`
	TV       *store.TruthValue `json:"tv"`
	Outgoing []sourceID        `json:"outgoing"`
}

type importPayload struct {
	Atoms *[]importEntry `json:"atoms"`
}

// Import loads an export payload into this owner's knowledge base and
// returns how many atoms were processed (created or matched).
//
// Nodes are found-or-created first and their source ids mapped to local
// ids. Links are then created once all their targets are mapped, repeating
// until no pending link can make progress, so the order of links in the
// payload does not matter. An outgoing id that never resolves fails the
// import. The whole batch runs in one transaction.
func (as *AtomSpace) Import(ctx context.Context, payload []byte) (int, error) {
	var p importPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, store.AsImportError(err, "parse import payload")
	}
	if p.Atoms == nil {
		return 0, store.Importf("payload has no atoms array")
	}
	entries := *p.Atoms

	count := 0
	err := as.db.Update(ctx, func(tx *store.Tx) error {
		ids := make(map[sourceID]int64, len(entries))
		var pending []*importEntry

		for i := range entries {
			e := &entries[i]
			switch e.AtomType {
			case store.KindNode:
				if e.Name == nil {
					return store.Importf("node %s has no name", e.ID)
				}
				value, err := store.EncodeValue(e.Value)
				if err != nil {
					return store.AsImportError(err, "node "+string(e.ID))
				}
				a, err := tx.AddNode(ctx, as.owner, e.TypeName, *e.Name, value, e.TV)
				if err != nil {
					return store.AsImportError(err, "node "+string(e.ID))
				}
				if e.ID != "" {
					ids[e.ID] = a.ID
				}
				count++
			case store.KindLink:
				pending = append(pending, e)
			default:
				return store.Importf("atom %s has unknown atom_type %q", e.ID, e.AtomType)
			}
		}

		for len(pending) > 0 {
			var next []*importEntry
			for _, e := range pending {
				outgoing, ok := resolveOutgoing(ids, e.Outgoing)
				if !ok {
					next = append(next, e)
					continue
				}
				if len(outgoing) == 0 {
					return store.Importf("link %s has no outgoing atoms", e.ID)
				}
				a, err := tx.AddLink(ctx, as.owner, e.TypeName, outgoing, e.TV)
				if err != nil {
					return store.AsImportError(err, "link "+string(e.ID))
				}
				if e.ID != "" {
					ids[e.ID] = a.ID
				}
				count++
			}
			if len(next) == len(pending) {
				e := next[0]
				for _, ref := range e.Outgoing {
					if _, ok := ids[ref]; !ok {
						return store.Importf("link %s references unknown atom %s", e.ID, ref)
					}
				}
			}
			pending = next
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	as.log.Infow("atomspace imported", "atom_count", count)
	return count, nil
}

func resolveOutgoing(ids map[sourceID]int64, refs []sourceID) ([]int64, bool) {
	out := make([]int64, len(refs))
	for i, ref := range refs {
		id, ok := ids[ref]
		if !ok {
			return nil, false
		}
		out[i] = id
	}
	return out, true
}
