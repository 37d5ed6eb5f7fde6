package atomspace

import (
	"context"
	"strconv"
	"strings"

	"github.com/lazypower/atomspace/internal/store"
)

// maxRenderDepth bounds how deep Render descends into nested links.
const maxRenderDepth = 16

// Render prints an atom in s-expression form:
//
//	(EvaluationLink (PredicateNode "likes") (ListLink (ConceptNode "A") (ConceptNode "B")))
//
// A link that appears inside itself prints as <cycle #id>; anything below
// maxRenderDepth prints as "...".
func (as *AtomSpace) Render(ctx context.Context, a *store.Atom) (string, error) {
	var b strings.Builder
	if err := as.render(ctx, &b, a, map[int64]bool{}, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (as *AtomSpace) render(ctx context.Context, b *strings.Builder, a *store.Atom, path map[int64]bool, depth int) error {
	if a.IsNode() {
		b.WriteString("(" + a.TypeName + " " + strconv.Quote(a.Name) + ")")
		return nil
	}
	if path[a.ID] {
		b.WriteString("<cycle #" + strconv.FormatInt(a.ID, 10) + ">")
		return nil
	}
	if depth >= maxRenderDepth {
		b.WriteString("...")
		return nil
	}

	out, err := as.db.Outgoing(ctx, a.ID)
	if err != nil {
		return err
	}

	path[a.ID] = true
	defer delete(path, a.ID)

	b.WriteString("(" + a.TypeName)
	for i := range out {
		b.WriteByte(' ')
		if err := as.render(ctx, b, &out[i], path, depth+1); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}
