package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/dbx"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
)

// listPageSize bounds how many rows ListAll holds in memory at once.
var listPageSize = 100

const recordColumns = `id, owner_id, product_name, purchase_date, expiration_date,
	receipt_ref, updated_at, base_updated_at, deleted, sync_state`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.WarrantyRecord, error) {
	var (
		rec                                  models.WarrantyRecord
		purchase, expiration, updated, based int64
		receipt                              sql.NullString
		deleted                              int64
		state                                string
	)
	err := s.Scan(&rec.ID, &rec.OwnerID, &rec.ProductName, &purchase, &expiration,
		&receipt, &updated, &based, &deleted, &state)
	if err != nil {
		return models.WarrantyRecord{}, err
	}
	rec.PurchaseDate = timex.FromUnixMicro(purchase)
	rec.ExpirationDate = timex.FromUnixMicro(expiration)
	rec.ReceiptRef = receipt.String
	rec.UpdatedAt = timex.FromUnixMicro(updated)
	rec.BaseUpdatedAt = timex.FromUnixMicro(based)
	rec.Deleted = deleted != 0
	rec.SyncState, err = models.ParseSyncState(state)
	if err != nil {
		return models.WarrantyRecord{}, err
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec models.WarrantyRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO warranty_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			product_name = excluded.product_name,
			purchase_date = excluded.purchase_date,
			expiration_date = excluded.expiration_date,
			receipt_ref = excluded.receipt_ref,
			updated_at = excluded.updated_at,
			base_updated_at = excluded.base_updated_at,
			deleted = excluded.deleted,
			sync_state = excluded.sync_state`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.ProductName,
		timex.ToUnixMicro(rec.PurchaseDate), timex.ToUnixMicro(rec.ExpirationDate),
		nullString(rec.ReceiptRef),
		timex.ToUnixMicro(rec.UpdatedAt), timex.ToUnixMicro(rec.BaseUpdatedAt),
		boolToInt(rec.Deleted), string(rec.SyncState))
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (models.WarrantyRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM warranty_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WarrantyRecord{}, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return models.WarrantyRecord{}, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.WarrantyRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.WarrantyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return result, nil
}

// ListAll pages with a keyset on (expiration_date, id). Rows are released
// before each page is yielded, so the loop body may write to the database.
func (r *SQLiteRepository) ListAll(ctx context.Context) iter.Seq2[models.WarrantyRecord, error] {
	return func(yield func(models.WarrantyRecord, error) bool) {
		var (
			page    []models.WarrantyRecord
			err     error
			lastExp int64
			lastID  string
			first   = true
		)
		for {
			if first {
				page, err = r.query(ctx, `SELECT `+recordColumns+` FROM warranty_records
					ORDER BY expiration_date, id LIMIT ?`, listPageSize)
			} else {
				page, err = r.query(ctx, `SELECT `+recordColumns+` FROM warranty_records
					WHERE expiration_date > ? OR (expiration_date = ? AND id > ?)
					ORDER BY expiration_date, id LIMIT ?`, lastExp, lastExp, lastID, listPageSize)
			}
			if err != nil {
				yield(models.WarrantyRecord{}, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}
			last := page[len(page)-1]
			lastExp, lastID, first = timex.ToUnixMicro(last.ExpirationDate), last.ID, false
		}
	}
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]models.WarrantyRecord, error) {
	return r.query(ctx, `SELECT `+recordColumns+` FROM warranty_records
		WHERE sync_state IN ('pending_create', 'pending_update', 'pending_delete')
		ORDER BY updated_at, id`)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, pushedUpdatedAt, remoteUpdatedAt time.Time) (bool, error) {
	pushed, remote := timex.ToUnixMicro(pushedUpdatedAt), timex.ToUnixMicro(remoteUpdatedAt)

	query := `UPDATE warranty_records SET
			base_updated_at = ?,
			updated_at = CASE WHEN updated_at = ? THEN ? ELSE updated_at END,
			sync_state = CASE
				WHEN updated_at = ? THEN 'clean'
				WHEN sync_state = 'pending_create' THEN 'pending_update'
				ELSE sync_state END
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, remote, pushed, remote, pushed, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark record %s synced: %w", id, err)
	}
	if err := dbx.ExpectOneRow(res, common.ErrNotFound); err != nil {
		return false, fmt.Errorf("record %s: %w", id, err)
	}

	var state string
	if err := r.db.QueryRowContext(ctx, `SELECT sync_state FROM warranty_records WHERE id = ?`, id).Scan(&state); err != nil {
		return false, fmt.Errorf("failed to read record %s state: %w", id, err)
	}
	return models.SyncState(state) == models.SyncStateClean, nil
}

func (r *SQLiteRepository) MarkConflict(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE warranty_records SET sync_state = 'conflict' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark record %s conflicted: %w", id, err)
	}
	if err := dbx.ExpectOneRow(res, common.ErrNotFound); err != nil {
		return fmt.Errorf("record %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) PurgeTombstone(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM warranty_records WHERE id = ? AND deleted = 1`, id)
	if err != nil {
		return fmt.Errorf("failed to purge record %s: %w", id, err)
	}
	if err := dbx.ExpectOneRow(res, common.ErrNotFound); err != nil {
		return fmt.Errorf("tombstone %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM warranty_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	if err := dbx.ExpectOneRow(res, common.ErrNotFound); err != nil {
		return fmt.Errorf("record %s: %w", id, err)
	}
	return nil
}
