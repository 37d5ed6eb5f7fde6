package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// maxQueryResultSize caps the cached result JSON of a saved query.
const maxQueryResultSize = 1 << 20 // 1MB

// SavedQuery is a stored pattern together with the result of its last run.
type SavedQuery struct {
	ID         int64
	OwnerID    int64
	Pattern    []byte
	Result     []byte // nil until executed
	CreatedAt  int64
	ExecutedAt *int64
}

const queryColumns = `id, owner_id, pattern, result, created_at, executed_at`

func scanQuery(s rowScanner) (*SavedQuery, error) {
	var q SavedQuery
	var pattern string
	var result sql.NullString
	var executed sql.NullInt64
	if err := s.Scan(&q.ID, &q.OwnerID, &pattern, &result, &q.CreatedAt, &executed); err != nil {
		return nil, err
	}
	q.Pattern = []byte(pattern)
	if result.Valid {
		q.Result = []byte(result.String)
	}
	if executed.Valid {
		q.ExecutedAt = &executed.Int64
	}
	return &q, nil
}

// CreateQuery stores a pattern for the owner.
func (db *DB) CreateQuery(ctx context.Context, owner int64, pattern []byte) (*SavedQuery, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		INSERT INTO saved_queries (owner_id, pattern, created_at) VALUES (?, ?, ?)
	`, owner, string(pattern), now)
	if err != nil {
		return nil, errors.Wrap(err, "create query")
	}
	id, _ := res.LastInsertId()
	return &SavedQuery{ID: id, OwnerID: owner, Pattern: pattern, CreatedAt: now}, nil
}

// GetQuery returns the owner's saved query, or nil.
func (db *DB) GetQuery(ctx context.Context, owner, id int64) (*SavedQuery, error) {
	row := db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM saved_queries WHERE id = ? AND owner_id = ?`, id, owner)
	q, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get query")
	}
	return q, nil
}

// ListQueries returns the owner's saved queries, most recently executed first.
func (db *DB) ListQueries(ctx context.Context, owner int64, limit int) ([]SavedQuery, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+queryColumns+` FROM saved_queries
		WHERE owner_id = ?
		ORDER BY COALESCE(executed_at, created_at) DESC, id DESC
		LIMIT ?
	`, owner, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list queries")
	}
	defer rows.Close()

	var out []SavedQuery
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan query")
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// RecordQueryResult caches a query result and stamps executed_at. Results
// larger than 1MB are not cached; executed_at is still updated.
func (db *DB) RecordQueryResult(ctx context.Context, owner, id int64, result []byte) error {
	var cached any
	if len(result) <= maxQueryResultSize {
		cached = string(result)
	}
	_, err := db.ExecContext(ctx, `
		UPDATE saved_queries SET result = ?, executed_at = ? WHERE id = ? AND owner_id = ?
	`, cached, time.Now().UnixMilli(), id, owner)
	if err != nil {
		return errors.Wrap(err, "record query result")
	}
	return nil
}
