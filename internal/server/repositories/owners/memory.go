package owners

import (
	"context"
	"maps"

	"github.com/dmitrijs2005/mywarranties/internal/common"
)

// MemoryRepository is the in-memory counterpart of PostgresRepository.
// Locking is left to the repository manager.
type MemoryRepository struct {
	versions map[string]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{versions: map[string]int64{}}
}

func (r *MemoryRepository) Clone() *MemoryRepository {
	return &MemoryRepository{versions: maps.Clone(r.versions)}
}

func (r *MemoryRepository) Lock(_ context.Context, ownerID string) (int64, error) {
	v, ok := r.versions[ownerID]
	if !ok {
		r.versions[ownerID] = 0
	}
	return v, nil
}

func (r *MemoryRepository) CurrentVersion(_ context.Context, ownerID string) (int64, error) {
	return r.versions[ownerID], nil
}

func (r *MemoryRepository) IncrementCurrentVersion(_ context.Context, ownerID string) (int64, error) {
	v, ok := r.versions[ownerID]
	if !ok {
		return 0, common.ErrNotFound
	}
	v++
	r.versions[ownerID] = v
	return v, nil
}
