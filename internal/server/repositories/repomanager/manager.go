package repomanager

import (
	"context"

	"github.com/dmitrijs2005/mywarranties/internal/server/repositories/owners"
	"github.com/dmitrijs2005/mywarranties/internal/server/repositories/records"
)

// Repositories are the repositories bound to one transaction.
type Repositories struct {
	Records records.Repository
	Owners  owners.Repository
}

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// InTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Close() error
}

// New opens the backend selected by dsn: PostgreSQL, or memory when dsn is
// empty. Migrations are applied before returning.
func New(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return NewMemoryRepositoryManager(), nil
	}
	m, err := OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return m, nil
}
