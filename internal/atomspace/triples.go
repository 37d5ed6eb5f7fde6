package atomspace

import (
	"cmp"
	"context"
	"slices"

	"github.com/lazypower/atomspace/internal/store"
)

// Triple is a subject-predicate-object fact. It is stored as
//
//	(EvaluationLink (PredicateNode p) (ListLink (ConceptNode s) (ConceptNode o)))
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// AddTriple records a fact and returns its EvaluationLink. All five atoms
// are found or created in one transaction, so repeating a call is a no-op.
func (as *AtomSpace) AddTriple(ctx context.Context, subject, predicate, object string) (*store.Atom, error) {
	var eval *store.Atom
	err := as.db.Update(ctx, func(tx *store.Tx) error {
		subj, err := tx.AddNode(ctx, as.owner, store.ConceptNode, subject, nil, nil)
		if err != nil {
			return err
		}
		pred, err := tx.AddNode(ctx, as.owner, store.PredicateNode, predicate, nil, nil)
		if err != nil {
			return err
		}
		obj, err := tx.AddNode(ctx, as.owner, store.ConceptNode, object, nil, nil)
		if err != nil {
			return err
		}
		list, err := tx.AddLink(ctx, as.owner, store.ListLink, []int64{subj.ID, obj.ID}, nil)
		if err != nil {
			return err
		}
		eval, err = tx.AddLink(ctx, as.owner, store.EvaluationLink, []int64{pred.ID, list.ID}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return eval, nil
}

// QuerySubject decodes every fact about subject, in EvaluationLink id order.
// Atoms that do not have the triple shape are skipped, never reported as
// errors.
func (as *AtomSpace) QuerySubject(ctx context.Context, subject string) ([]Triple, error) {
	subj, err := as.db.FindNode(ctx, as.owner, store.ConceptNode, subject)
	if err != nil {
		return nil, err
	}
	if subj == nil {
		return []Triple{}, nil
	}

	lists, err := as.Incoming(ctx, subj)
	if err != nil {
		return nil, err
	}

	type fact struct {
		evalID int64
		triple Triple
	}
	var facts []fact
	for i := range lists {
		list := &lists[i]
		if list.TypeName != store.ListLink {
			continue
		}
		args, err := as.Outgoing(ctx, list)
		if err != nil {
			return nil, err
		}
		if len(args) != 2 || args[0].ID != subj.ID {
			continue
		}

		evals, err := as.Incoming(ctx, list)
		if err != nil {
			return nil, err
		}
		for j := range evals {
			eval := &evals[j]
			if eval.TypeName != store.EvaluationLink {
				continue
			}
			out, err := as.Outgoing(ctx, eval)
			if err != nil {
				return nil, err
			}
			if len(out) != 2 || out[1].ID != list.ID {
				continue
			}
			facts = append(facts, fact{eval.ID, Triple{
				Subject:   subject,
				Predicate: out[0].Name,
				Object:    args[1].Name,
			}})
		}
	}

	slices.SortFunc(facts, func(a, b fact) int { return cmp.Compare(a.evalID, b.evalID) })

	triples := make([]Triple, len(facts))
	for i, f := range facts {
		triples[i] = f.triple
	}
	return triples, nil
}
