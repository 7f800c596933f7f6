package records

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_UpsertGetList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.GetForUpdate(ctx, "r1")
	require.ErrorIs(t, err, common.ErrNotFound)

	for i, id := range []string{"r3", "r1", "r2"} {
		rec := sampleRecord()
		rec.ID = id
		rec.Seq = int64(3 - i)
		require.NoError(t, repo.Upsert(ctx, rec))
	}
	other := sampleRecord()
	other.ID, other.OwnerID, other.Seq = "x", "o2", 1
	require.NoError(t, repo.Upsert(ctx, other))

	got, err := repo.GetForUpdate(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Seq)

	list, err := repo.ListSince(ctx, "o1", 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r1", list[0].ID)
	assert.Equal(t, "r3", list[1].ID)

	list, err = repo.ListSince(ctx, "o1", 0, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r2", list[0].ID)
}

func TestMemoryRepository_RejectsOtherOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Upsert(ctx, sampleRecord()))

	stolen := sampleRecord()
	stolen.OwnerID = "o2"
	err := repo.Upsert(ctx, stolen)
	assert.True(t, errors.Is(err, common.ErrForbidden))
}

func TestMemoryRepository_CloneIsIndependent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Upsert(ctx, sampleRecord()))

	clone := repo.Clone()
	rec := sampleRecord()
	rec.ID = "r2"
	require.NoError(t, clone.Upsert(ctx, rec))

	_, err := repo.GetForUpdate(ctx, "r2")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = clone.GetForUpdate(ctx, "r1")
	assert.NoError(t, err)
}
