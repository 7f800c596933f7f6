package conflicts

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/migrations"
	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "conflicts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func TestAddAndList(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	snap := &models.WarrantyRecord{
		ID: "r1", OwnerID: "o", ProductName: "Local TV",
		PurchaseDate: t1, ExpirationDate: t1.AddDate(1, 0, 0),
		UpdatedAt: t1, SyncState: models.SyncStatePendingUpdate,
	}

	id, err := r.Add(ctx, models.ConflictEntry{
		RecordID: "r1", Outcome: models.ConflictSurfaced,
		LocalUpdatedAt: t1, RemoteUpdatedAt: t2, LocalSnapshot: snap, CreatedAt: t2,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = r.Add(ctx, models.ConflictEntry{
		RecordID: "r2", Outcome: models.ConflictRejected,
		LocalUpdatedAt: t1, CreatedAt: t2,
	})
	require.NoError(t, err)

	open, err := r.ListUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)

	assert.Equal(t, "r1", open[0].RecordID)
	assert.Equal(t, models.ConflictSurfaced, open[0].Outcome)
	require.NotNil(t, open[0].LocalSnapshot)
	if diff := cmp.Diff(*snap, *open[0].LocalSnapshot); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, open[1].LocalSnapshot)
	assert.True(t, open[1].RemoteUpdatedAt.IsZero())
}

func TestLatestUnresolvedAndResolve(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := r.LatestUnresolved(ctx, "r1")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = r.Add(ctx, models.ConflictEntry{RecordID: "r1", Outcome: models.ConflictRemoteWins, CreatedAt: now})
	require.NoError(t, err)
	second, err := r.Add(ctx, models.ConflictEntry{RecordID: "r1", Outcome: models.ConflictSurfaced, CreatedAt: now})
	require.NoError(t, err)

	latest, err := r.LatestUnresolved(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, second, latest.ID)

	require.NoError(t, r.Resolve(ctx, "r1"))
	_, err = r.LatestUnresolved(ctx, "r1")
	require.ErrorIs(t, err, common.ErrNotFound)

	open, err := r.ListUnresolved(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAddResolvedEntryIsNotOpen(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Add(ctx, models.ConflictEntry{
		RecordID: "r1", Outcome: models.ConflictRemoteWins, Resolved: true,
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	open, err := r.ListUnresolved(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = r.LatestUnresolved(ctx, "r1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
