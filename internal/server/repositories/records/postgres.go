// Package records stores the remote copies of warranty records, in
// PostgreSQL or in memory.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/dbx"
	"github.com/dmitrijs2005/mywarranties/internal/server/models"
)

// PostgresRepository implements record storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, owner_id, product_name, purchase_date, expiration_date, receipt_ref,
	updated_at, client_updated_at, deleted, seq`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.Record, error) {
	var r models.Record
	err := s.Scan(&r.ID, &r.OwnerID, &r.ProductName, &r.PurchaseDate, &r.ExpirationDate, &r.ReceiptRef,
		&r.UpdatedAt, &r.ClientUpdatedAt, &r.Deleted, &r.Seq)
	if err != nil {
		return models.Record{}, err
	}
	r.PurchaseDate = r.PurchaseDate.UTC()
	r.ExpirationDate = r.ExpirationDate.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.ClientUpdatedAt = r.ClientUpdatedAt.UTC()
	return r, nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1 FOR UPDATE`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Record{}, common.ErrNotFound
		}
		return models.Record{}, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec models.Record) error {
	query := `
		INSERT INTO records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id)
		DO UPDATE SET
			product_name = EXCLUDED.product_name,
			purchase_date = EXCLUDED.purchase_date,
			expiration_date = EXCLUDED.expiration_date,
			receipt_ref = EXCLUDED.receipt_ref,
			updated_at = EXCLUDED.updated_at,
			client_updated_at = EXCLUDED.client_updated_at,
			deleted = EXCLUDED.deleted,
			seq = EXCLUDED.seq
			WHERE records.owner_id = EXCLUDED.owner_id;
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.ProductName, rec.PurchaseDate, rec.ExpirationDate, rec.ReceiptRef,
		rec.UpdatedAt, rec.ClientUpdatedAt, rec.Deleted, rec.Seq)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectOneRow(res, common.ErrForbidden)
}

func (r *PostgresRepository) ListSince(ctx context.Context, ownerID string, cursor int64, limit int) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE owner_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, ownerID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
