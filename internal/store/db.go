package store

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// connPragmas are applied to every pooled connection through the DSN, so
// foreign key cascades hold no matter which connection runs a statement.
// Transactions begin IMMEDIATE, so one that reads before writing waits on
// busy_timeout rather than failing with SQLITE_BUSY on lock upgrade.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

// DB wraps a sql.DB connection to the atomspace SQLite database.
type DB struct {
	*sql.DB
	Path string
	log  *zap.SugaredLogger
}

// DefaultDBPath returns the default database path: ~/.atomspace/atomspace.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "get home dir")
	}
	return filepath.Join(home, ".atomspace", "atomspace.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations. A nil logger is allowed.
func Open(path string, logger *zap.SugaredLogger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create db dir")
	}

	sqlDB, err := sql.Open("sqlite", path+"?"+connPragmas)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	db := &DB{DB: sqlDB, Path: path, log: orNop(logger)}
	db.log.Debugw("opening database", "path", path)
	if err := db.configurePragmas(true); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	db.log.Infow("database ready", "path", path, "wal_mode", true, "foreign_keys", true)
	return db, nil
}

// OpenMemory opens an in-memory SQLite database for testing.
// Every :memory: connection is a separate database, so the pool is pinned
// to a single connection.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?"+connPragmas)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite memory")
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, Path: ":memory:", log: zap.NewNop().Sugar()}
	if err := db.configurePragmas(false); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}

// SetLogger replaces the store logger.
func (db *DB) SetLogger(logger *zap.SugaredLogger) {
	db.log = orNop(logger)
}

func (db *DB) configurePragmas(onDisk bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	if onDisk {
		pragmas = append(pragmas,
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA mmap_size=268435456", // 256MB
		)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return errors.Wrapf(err, "pragma %q", p)
		}
	}
	return nil
}

func orNop(logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger
}
