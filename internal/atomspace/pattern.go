package atomspace

import (
	"context"
	"regexp"
	"strings"

	"github.com/lazypower/atomspace/internal/store"
)

// NameMode selects how Pattern.Name is compared against atom names.
type NameMode string

const (
	NameExact     NameMode = "exact"
	NameSubstring NameMode = "substring"
	NameRegex     NameMode = "regex"
)

// Pattern is a conjunction of optional predicates over atom attributes.
// Empty fields are not constrained; the zero Pattern matches every atom.
//
// Matching is a linear scan over the owner's atoms: each call costs
// O(atoms owned). Only TypeName is narrowed by an index.
type Pattern struct {
	AtomType store.Kind `json:"atom_type,omitempty"`
	TypeName string     `json:"type_name,omitempty"`
	Name     string     `json:"name,omitempty"`
	NameMode NameMode   `json:"name_mode,omitempty"`
}

type matcher func(a *store.Atom) bool

// compile validates p and returns its predicate.
func (p Pattern) compile() (matcher, error) {
	if p.AtomType != "" && !p.AtomType.Valid() {
		return nil, store.Validationf("atom_type must be node or link, got %q", p.AtomType)
	}

	var nameMatch func(string) bool
	switch p.NameMode {
	case "", NameExact:
		if p.Name != "" {
			nameMatch = func(s string) bool { return s == p.Name }
		}
	case NameSubstring:
		if p.Name != "" {
			nameMatch = func(s string) bool { return strings.Contains(s, p.Name) }
		}
	case NameRegex:
		if p.Name != "" {
			re, err := regexp.Compile(p.Name)
			if err != nil {
				return nil, store.Validationf("invalid name regex: %v", err)
			}
			nameMatch = re.MatchString
		}
	default:
		return nil, store.Validationf("name_mode must be exact, substring, or regex, got %q", p.NameMode)
	}

	return func(a *store.Atom) bool {
		if p.AtomType != "" && a.Kind != p.AtomType {
			return false
		}
		if p.TypeName != "" && a.TypeName != p.TypeName {
			return false
		}
		if nameMatch != nil && (!a.IsNode() || !nameMatch(a.Name)) {
			return false
		}
		return true
	}, nil
}

// PatternMatch returns the owner's atoms satisfying every predicate in p,
// in id order.
func (as *AtomSpace) PatternMatch(ctx context.Context, p Pattern) ([]store.Atom, error) {
	match, err := p.compile()
	if err != nil {
		return nil, err
	}

	atoms, err := as.db.ListAtoms(ctx, as.owner, store.ListOpts{
		TypeName: p.TypeName,
		Limit:    as.limits.ExportCap,
	})
	if err != nil {
		return nil, err
	}

	out := atoms[:0]
	for i := range atoms {
		if match(&atoms[i]) {
			out = append(out, atoms[i])
		}
	}
	return out, nil
}
