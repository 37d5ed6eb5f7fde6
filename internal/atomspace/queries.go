package atomspace

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/atomspace/internal/store"
)

// SaveQuery validates and stores a pattern for later execution.
func (as *AtomSpace) SaveQuery(ctx context.Context, p Pattern) (*store.SavedQuery, error) {
	if _, err := p.compile(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "encode pattern")
	}
	return as.db.CreateQuery(ctx, as.owner, raw)
}

// ListQueries returns the owner's saved queries, most recent first.
func (as *AtomSpace) ListQueries(ctx context.Context, limit int) ([]store.SavedQuery, error) {
	return as.db.ListQueries(ctx, as.owner, ClampLimit(limit, as.limits.DefaultPage, as.limits.MaxPage))
}

// ExecuteQuery runs a saved pattern and caches its result.
func (as *AtomSpace) ExecuteQuery(ctx context.Context, id int64) ([]AtomView, error) {
	q, err := as.db.GetQuery(ctx, as.owner, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, store.NotFoundf("query %d not found", id)
	}

	var p Pattern
	if err := json.Unmarshal(q.Pattern, &p); err != nil {
		return nil, store.Validationf("query %d has an unreadable pattern: %v", id, err)
	}
	atoms, err := as.PatternMatch(ctx, p)
	if err != nil {
		return nil, err
	}
	views, err := as.Views(ctx, atoms)
	if err != nil {
		return nil, err
	}

	result, err := json.Marshal(views)
	if err != nil {
		return nil, errors.Wrap(err, "encode query result")
	}
	if err := as.db.RecordQueryResult(ctx, as.owner, id, result); err != nil {
		return nil, err
	}
	as.log.Debugw("query executed", "query_id", id, "matches", len(views))
	return views, nil
}
