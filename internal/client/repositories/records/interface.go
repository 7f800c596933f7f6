// Package records is the local warranty record store backed by SQLite.
// Every method is a single statement, so each write is atomic per record.
// Read-modify-write sequences go through the client Store, which adds the
// per-record lock and a transaction.
package records

import (
	"context"
	"iter"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
)

type Repository interface {
	// Upsert inserts or fully replaces the row with rec.ID.
	Upsert(ctx context.Context, rec models.WarrantyRecord) error

	// Get returns common.ErrNotFound for unknown ids. Tombstones are returned.
	Get(ctx context.Context, id string) (models.WarrantyRecord, error)

	// ListAll yields every row, tombstones included, ordered by expiration
	// date. The sequence is paged; ranging over it again restarts the listing.
	ListAll(ctx context.Context) iter.Seq2[models.WarrantyRecord, error]

	// ListPending returns the rows with a mutation waiting to be pushed.
	ListPending(ctx context.Context) ([]models.WarrantyRecord, error)

	// MarkSynced records a push acknowledgement. The row becomes Clean only if
	// its updated_at still equals pushedUpdatedAt; otherwise it was edited
	// while the push was in flight and only base_updated_at moves forward.
	// The returned bool reports whether the row was cleared.
	MarkSynced(ctx context.Context, id string, pushedUpdatedAt, remoteUpdatedAt time.Time) (bool, error)

	MarkConflict(ctx context.Context, id string) error

	// PurgeTombstone removes the row. Non-tombstones are left alone and
	// reported as common.ErrNotFound.
	PurgeTombstone(ctx context.Context, id string) error

	// Delete removes the row whatever its state.
	Delete(ctx context.Context, id string) error
}
