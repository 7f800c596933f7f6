// Package services contains the remote store's business logic: accepting
// pushed record versions, paging changes out to devices, notifying
// subscribers, presigning receipt URLs and issuing access tokens.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/server/models"
	"github.com/dmitrijs2005/mywarranties/internal/server/repositories/repomanager"
)

// Publisher is told the owner's new version after every committed write.
type Publisher interface {
	Publish(ownerID string, seq int64)
}

// PushRequest is one device mutation.
type PushRequest struct {
	Record models.Record
	// BaseUpdatedAt is the remote version the mutation was made on; zero
	// when the device never saw the record.
	BaseUpdatedAt time.Time
}

// Page is one FetchChanges response.
type Page struct {
	Records []models.Record
	Cursor  int64
	HasMore bool
}

type SyncService struct {
	repomanager repomanager.RepositoryManager
	publisher   Publisher
	pageSize    int
	log         logging.Logger
}

func NewSyncService(m repomanager.RepositoryManager, p Publisher, pageSize int, log logging.Logger) *SyncService {
	return &SyncService{repomanager: m, publisher: p, pageSize: pageSize, log: log}
}

// Push stores one record version for ownerID and returns the stored row.
//
// A push whose updated_at equals the stored client timestamp is a replay
// and is acknowledged without a write. A push built on an outdated base
// that is also older than the stored version fails with common.ErrConflict.
// Records of other owners yield common.ErrForbidden, invalid ones
// common.ErrInvalidRecord.
func (s *SyncService) Push(ctx context.Context, ownerID string, req PushRequest) (models.Record, error) {
	in := req.Record
	in.OwnerID = ownerID
	in.UpdatedAt = normalize(in.UpdatedAt)
	in.PurchaseDate = in.PurchaseDate.UTC()
	in.ExpirationDate = in.ExpirationDate.UTC()
	base := normalize(req.BaseUpdatedAt)

	if err := in.Validate(); err != nil {
		return models.Record{}, err
	}

	var stored models.Record
	written := false

	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		if _, err := r.Owners.Lock(ctx, ownerID); err != nil {
			return err
		}

		cur, err := r.Records.GetForUpdate(ctx, in.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			in.ClientUpdatedAt = in.UpdatedAt
		case err != nil:
			return err
		case cur.OwnerID != ownerID:
			return fmt.Errorf("%w: record %s", common.ErrForbidden, in.ID)
		case cur.ClientUpdatedAt.Equal(in.UpdatedAt):
			stored = cur
			return nil
		case !base.Equal(cur.UpdatedAt) && in.UpdatedAt.Before(cur.UpdatedAt):
			return fmt.Errorf("%w: record %s moved to %s since %s", common.ErrConflict,
				in.ID, cur.UpdatedAt.Format(time.RFC3339Nano), base.Format(time.RFC3339Nano))
		default:
			in.ClientUpdatedAt = in.UpdatedAt
			if floor := cur.UpdatedAt.Add(time.Microsecond); in.UpdatedAt.Before(floor) {
				in.UpdatedAt = floor
			}
		}

		seq, err := r.Owners.IncrementCurrentVersion(ctx, ownerID)
		if err != nil {
			return err
		}
		in.Seq = seq

		if err := r.Records.Upsert(ctx, in); err != nil {
			return err
		}
		stored = in
		written = true
		return nil
	})
	if err != nil {
		return models.Record{}, err
	}

	if written {
		s.log.Debug(ctx, "record stored", "owner_id", ownerID, "id", stored.ID, "seq", stored.Seq, "deleted", stored.Deleted)
		s.publisher.Publish(ownerID, stored.Seq)
	} else {
		s.log.Debug(ctx, "push replay acknowledged", "owner_id", ownerID, "id", stored.ID)
	}
	return stored, nil
}

// FetchChanges returns the owner's records with seq > cursor in seq order.
// limit is clamped to the configured page size.
func (s *SyncService) FetchChanges(ctx context.Context, ownerID string, cursor int64, limit int) (Page, error) {
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	var rows []models.Record
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		var err error
		rows, err = r.Records.ListSince(ctx, ownerID, cursor, limit+1)
		return err
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{Records: rows, Cursor: cursor}
	if len(rows) > limit {
		page.Records = rows[:limit]
		page.HasMore = true
	}
	if n := len(page.Records); n > 0 {
		page.Cursor = page.Records[n-1].Seq
	}
	return page, nil
}

// CurrentVersion returns the owner's latest seq.
func (s *SyncService) CurrentVersion(ctx context.Context, ownerID string) (int64, error) {
	var v int64
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		var err error
		v, err = r.Owners.CurrentVersion(ctx, ownerID)
		return err
	})
	return v, err
}

func normalize(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}
