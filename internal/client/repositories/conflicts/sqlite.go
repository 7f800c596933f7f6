package conflicts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/dbx"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
)

const columns = `id, record_id, outcome, local_updated_at, remote_updated_at, local_snapshot, resolved, created_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (models.ConflictEntry, error) {
	var (
		e                      models.ConflictEntry
		outcome                string
		local, remote, created int64
		snapshot               []byte
		resolved               int64
	)
	if err := s.Scan(&e.ID, &e.RecordID, &outcome, &local, &remote, &snapshot, &resolved, &created); err != nil {
		return models.ConflictEntry{}, err
	}
	e.Outcome = models.ConflictOutcome(outcome)
	e.LocalUpdatedAt = timex.FromUnixMicro(local)
	e.RemoteUpdatedAt = timex.FromUnixMicro(remote)
	e.CreatedAt = timex.FromUnixMicro(created)
	e.Resolved = resolved != 0
	if len(snapshot) > 0 {
		var rec models.WarrantyRecord
		if err := json.Unmarshal(snapshot, &rec); err != nil {
			return models.ConflictEntry{}, fmt.Errorf("decode snapshot: %w", err)
		}
		e.LocalSnapshot = &rec
	}
	return e, nil
}

func (r *SQLiteRepository) Add(ctx context.Context, e models.ConflictEntry) (int64, error) {
	var snapshot []byte
	if e.LocalSnapshot != nil {
		b, err := json.Marshal(e.LocalSnapshot)
		if err != nil {
			return 0, fmt.Errorf("encode snapshot: %w", err)
		}
		snapshot = b
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO conflict_log
			(record_id, outcome, local_updated_at, remote_updated_at, local_snapshot, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RecordID, string(e.Outcome), timex.ToUnixMicro(e.LocalUpdatedAt), timex.ToUnixMicro(e.RemoteUpdatedAt),
		snapshot, e.Resolved, timex.ToUnixMicro(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to log conflict for %s: %w", e.RecordID, err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListUnresolved(ctx context.Context) ([]models.ConflictEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM conflict_log WHERE resolved = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var result []models.ConflictEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conflicts: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) LatestUnresolved(ctx context.Context, recordID string) (models.ConflictEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM conflict_log
		WHERE record_id = ? AND resolved = 0 ORDER BY id DESC LIMIT 1`, recordID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConflictEntry{}, fmt.Errorf("conflict for %s: %w", recordID, common.ErrNotFound)
	}
	if err != nil {
		return models.ConflictEntry{}, fmt.Errorf("failed to get conflict for %s: %w", recordID, err)
	}
	return e, nil
}

func (r *SQLiteRepository) Resolve(ctx context.Context, recordID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conflict_log SET resolved = 1 WHERE record_id = ? AND resolved = 0`, recordID)
	if err != nil {
		return fmt.Errorf("failed to resolve conflicts for %s: %w", recordID, err)
	}
	return nil
}
