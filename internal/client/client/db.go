package client

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/mywarranties/internal/client/migrations"
	"github.com/dmitrijs2005/mywarranties/internal/client/repositories/conflicts"
	"github.com/dmitrijs2005/mywarranties/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/mywarranties/internal/client/repositories/records"
	"github.com/dmitrijs2005/mywarranties/internal/client/repositories/triggers"
	"github.com/dmitrijs2005/mywarranties/internal/dbx"
	"github.com/dmitrijs2005/mywarranties/internal/keylock"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Records   records.Repository
	Triggers  triggers.Repository
	Metadata  metadata.Repository
	Conflicts conflicts.Repository
}

// NewRepositories binds the SQLite repositories to db, which may be a
// transaction.
func NewRepositories(db dbx.DBTX) Repositories {
	return Repositories{
		Records:   records.NewSQLiteRepository(db),
		Triggers:  triggers.NewSQLiteRepository(db),
		Metadata:  metadata.NewSQLiteRepository(db),
		Conflicts: conflicts.NewSQLiteRepository(db),
	}
}

// Store is the local database: repositories for plain reads and single
// statement writes, plus Mutate for read-modify-write under a record lock.
type Store struct {
	Repositories
	db    *sql.DB
	locks *keylock.Locker
}

func NewStore(db *sql.DB) *Store {
	return &Store{Repositories: NewRepositories(db), db: db, locks: keylock.New()}
}

// InTx runs fn against repositories bound to one transaction. fn must not
// touch the Store's own repositories or call remote services.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewRepositories(tx))
	})
}

// Mutate holds the lock for recordID while fn runs inside a transaction.
func (s *Store) Mutate(ctx context.Context, recordID string, fn func(ctx context.Context, r Repositories) error) error {
	unlock := s.locks.Lock(recordID)
	defer unlock()
	return s.InTx(ctx, fn)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations is a seam for tests.
var runMigrations = migrations.Up

// InitDatabase opens the SQLite file at dsn and brings its schema up to date.
// A single connection is kept so that transactions serialize.
func InitDatabase(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db), nil
}
