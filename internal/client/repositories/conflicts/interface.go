// Package conflicts keeps the conflict_log: every divergence the sync engine
// handled, with a snapshot of the local side so the user can review it.
package conflicts

import (
	"context"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
)

type Repository interface {
	Add(ctx context.Context, e models.ConflictEntry) (int64, error)
	// ListUnresolved returns open entries, oldest first.
	ListUnresolved(ctx context.Context) ([]models.ConflictEntry, error)
	// LatestUnresolved returns common.ErrNotFound when the record has no open entry.
	LatestUnresolved(ctx context.Context, recordID string) (models.ConflictEntry, error)
	// Resolve closes every open entry of the record.
	Resolve(ctx context.Context, recordID string) error
}
