package records

import (
	"context"

	"github.com/dmitrijs2005/mywarranties/internal/server/models"
)

type Repository interface {
	// GetForUpdate returns the record and locks it for the rest of the
	// transaction. A miss is common.ErrNotFound.
	GetForUpdate(ctx context.Context, id string) (models.Record, error)
	// Upsert writes rec by id. Rows of another owner are left alone and
	// reported as common.ErrForbidden.
	Upsert(ctx context.Context, rec models.Record) error
	// ListSince returns up to limit records of ownerID with seq > cursor,
	// ordered by seq.
	ListSince(ctx context.Context, ownerID string, cursor int64, limit int) ([]models.Record, error)
}
