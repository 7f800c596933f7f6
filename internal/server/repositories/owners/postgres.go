// Package owners keeps the per-owner version counter that orders the
// owner's record changes.
package owners

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Lock(ctx context.Context, ownerID string) (int64, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO owners (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	var version int64
	err = r.db.QueryRowContext(ctx,
		`SELECT current_version FROM owners WHERE owner_id = $1 FOR UPDATE`, ownerID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func (r *PostgresRepository) CurrentVersion(ctx context.Context, ownerID string) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx,
		`SELECT current_version FROM owners WHERE owner_id = $1`, ownerID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func (r *PostgresRepository) IncrementCurrentVersion(ctx context.Context, ownerID string) (int64, error) {
	query :=
		`UPDATE owners SET current_version = current_version + 1
		 WHERE owner_id = $1
		 RETURNING current_version
		 `

	var version int64
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return version, nil
}
