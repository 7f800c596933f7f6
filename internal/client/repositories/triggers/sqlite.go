package triggers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/dbx"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrigger(s scanner) (models.ReminderTrigger, error) {
	var (
		t               models.ReminderTrigger
		fireAt, expires int64
		fired           int64
	)
	if err := s.Scan(&t.RecordID, &fireAt, &expires, &fired, &t.Generation); err != nil {
		return models.ReminderTrigger{}, err
	}
	t.FireAt = timex.FromUnixMicro(fireAt)
	t.ExpirationDate = timex.FromUnixMicro(expires)
	t.Fired = fired != 0
	return t, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, recordID string) (models.ReminderTrigger, error) {
	row := r.db.QueryRowContext(ctx, `SELECT record_id, fire_at, expiration_date, fired, generation
		FROM reminder_triggers WHERE record_id = ?`, recordID)
	t, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReminderTrigger{}, fmt.Errorf("trigger %s: %w", recordID, common.ErrNotFound)
	}
	if err != nil {
		return models.ReminderTrigger{}, fmt.Errorf("failed to get trigger %s: %w", recordID, err)
	}
	return t, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, t models.ReminderTrigger) error {
	fired := 0
	if t.Fired {
		fired = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO reminder_triggers
			(record_id, fire_at, expiration_date, fired, generation)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			fire_at = excluded.fire_at,
			expiration_date = excluded.expiration_date,
			fired = excluded.fired,
			generation = excluded.generation`,
		t.RecordID, timex.ToUnixMicro(t.FireAt), timex.ToUnixMicro(t.ExpirationDate), fired, t.Generation)
	if err != nil {
		return fmt.Errorf("failed to put trigger %s: %w", t.RecordID, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkFired(ctx context.Context, recordID string, generation int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE reminder_triggers SET fired = 1
		WHERE record_id = ? AND generation = ? AND fired = 0`, recordID, generation)
	if err != nil {
		return false, fmt.Errorf("failed to mark trigger %s fired: %w", recordID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, recordID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminder_triggers WHERE record_id = ?`, recordID)
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", recordID, err)
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, where string) ([]models.ReminderTrigger, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT record_id, fire_at, expiration_date, fired, generation
		FROM reminder_triggers `+where+` ORDER BY fire_at, record_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	var result []models.ReminderTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate triggers: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) ListUnfired(ctx context.Context) ([]models.ReminderTrigger, error) {
	return r.list(ctx, "WHERE fired = 0")
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]models.ReminderTrigger, error) {
	return r.list(ctx, "")
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reminder_triggers`); err != nil {
		return fmt.Errorf("failed to clear triggers: %w", err)
	}
	return nil
}
