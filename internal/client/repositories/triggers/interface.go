// Package triggers persists reminder triggers. The scheduler is the only
// writer; rows are derived from records and may be rebuilt at any time.
package triggers

import (
	"context"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
)

type Repository interface {
	// Get returns common.ErrNotFound when the record has no trigger.
	Get(ctx context.Context, recordID string) (models.ReminderTrigger, error)
	// Put inserts or replaces the trigger for t.RecordID.
	Put(ctx context.Context, t models.ReminderTrigger) error
	// MarkFired flips fired for the given generation only. The returned bool
	// is false when the trigger is gone, already fired or superseded.
	MarkFired(ctx context.Context, recordID string, generation int64) (bool, error)
	Delete(ctx context.Context, recordID string) error
	ListUnfired(ctx context.Context) ([]models.ReminderTrigger, error)
	ListAll(ctx context.Context) ([]models.ReminderTrigger, error)
	// Clear drops every trigger; used when the table must be rebuilt.
	Clear(ctx context.Context) error
}
