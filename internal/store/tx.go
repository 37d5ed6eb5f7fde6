package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so read helpers can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a write transaction. Every mutating operation runs inside one, so
// multi-row effects (a link and its edges, an import batch) commit together.
type Tx struct {
	tx  *sql.Tx
	log *zap.SugaredLogger
}

// Update runs fn inside a transaction. The transaction commits if fn returns
// nil and rolls back otherwise; fn's error is returned unchanged.
func (db *DB) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	if err := fn(&Tx{tx: sqlTx, log: db.log}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			db.log.Warnw("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// Wrap adapts an already-open *sql.DB (for example a sqlmock connection)
// without running migrations.
func Wrap(sqlDB *sql.DB, logger *zap.SugaredLogger) *DB {
	return &DB{DB: sqlDB, Path: "", log: orNop(logger)}
}
