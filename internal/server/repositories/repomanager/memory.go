package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/mywarranties/internal/server/repositories/owners"
	"github.com/dmitrijs2005/mywarranties/internal/server/repositories/records"
)

// MemoryRepositoryManager keeps everything in process. Transactions run one
// at a time on clones of the data, which replace the originals on commit.
type MemoryRepositoryManager struct {
	mu      sync.Mutex
	records *records.MemoryRepository
	owners  *owners.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		records: records.NewMemoryRepository(),
		owners:  owners.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error {
	return nil
}

func (m *MemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	recs, owns := m.records.Clone(), m.owners.Clone()
	if err := fn(ctx, Repositories{Records: recs, Owners: owns}); err != nil {
		return err
	}
	m.records, m.owners = recs, owns
	return nil
}

func (m *MemoryRepositoryManager) Close() error {
	return nil
}
