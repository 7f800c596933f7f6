package records

import (
	"cmp"
	"context"
	"maps"
	"slices"

	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/server/models"
)

// MemoryRepository keeps records in a map. It does no locking: the
// repository manager serializes access and hands out clones as
// transactions.
type MemoryRepository struct {
	rows map[string]models.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: map[string]models.Record{}}
}

// Clone returns an independent copy.
func (r *MemoryRepository) Clone() *MemoryRepository {
	return &MemoryRepository{rows: maps.Clone(r.rows)}
}

func (r *MemoryRepository) GetForUpdate(_ context.Context, id string) (models.Record, error) {
	rec, ok := r.rows[id]
	if !ok {
		return models.Record{}, common.ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, rec models.Record) error {
	if cur, ok := r.rows[rec.ID]; ok && cur.OwnerID != rec.OwnerID {
		return common.ErrForbidden
	}
	r.rows[rec.ID] = rec
	return nil
}

func (r *MemoryRepository) ListSince(_ context.Context, ownerID string, cursor int64, limit int) ([]models.Record, error) {
	var result []models.Record
	for _, rec := range r.rows {
		if rec.OwnerID == ownerID && rec.Seq > cursor {
			result = append(result, rec)
		}
	}
	slices.SortFunc(result, func(a, b models.Record) int { return cmp.Compare(a.Seq, b.Seq) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
