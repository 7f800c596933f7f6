package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/client"
	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/netx"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
	"github.com/google/uuid"
)

var (
	ErrNoConflict = errors.New("record is not in conflict")
	ErrNoReceipt  = errors.New("record has no receipt")
)

// TriggerRecomputer refreshes reminder triggers for changed records.
type TriggerRecomputer interface {
	Recompute(ctx context.Context, recs []models.WarrantyRecord) error
}

// NewRecord is the input of RecordService.Create. ExpirationDate wins over
// WarrantyMonths when both are set.
type NewRecord struct {
	ProductName    string
	PurchaseDate   time.Time
	ExpirationDate time.Time
	WarrantyMonths int
}

// RecordEdit lists the fields to change; nil fields are kept.
type RecordEdit struct {
	ProductName    *string
	PurchaseDate   *time.Time
	ExpirationDate *time.Time
	WarrantyMonths *int
}

// RecordService applies user mutations to the local store. It never talks
// to the sync service except for receipt blobs; mutations reach the remote
// on the next reconciliation cycle.
type RecordService struct {
	store      *client.Store
	remote     client.Client
	http       netx.HTTPDoer
	recomputer TriggerRecomputer
	clock      timex.Clock
	ownerID    string
	log        logging.Logger
}

func NewRecordService(store *client.Store, remote client.Client, http netx.HTTPDoer, recomputer TriggerRecomputer,
	clock timex.Clock, ownerID string, log logging.Logger) *RecordService {
	return &RecordService{
		store:      store,
		remote:     remote,
		http:       http,
		recomputer: recomputer,
		clock:      clock,
		ownerID:    ownerID,
		log:        log.With("component", "records"),
	}
}

func (s *RecordService) Create(ctx context.Context, in NewRecord) (models.WarrantyRecord, error) {
	rec := models.WarrantyRecord{
		ID:             uuid.NewString(),
		OwnerID:        s.ownerID,
		ProductName:    in.ProductName,
		PurchaseDate:   in.PurchaseDate,
		ExpirationDate: in.ExpirationDate,
		UpdatedAt:      nextTimestamp(s.clock, time.Time{}),
		SyncState:      models.SyncStatePendingCreate,
	}
	if rec.ExpirationDate.IsZero() {
		if in.WarrantyMonths <= 0 {
			return models.WarrantyRecord{}, fmt.Errorf("%w: expiration date or warranty months required", common.ErrInvalidRecord)
		}
		rec.ExpirationDate = models.ExpirationFromMonths(in.PurchaseDate, in.WarrantyMonths)
	}
	if err := rec.Validate(); err != nil {
		return models.WarrantyRecord{}, err
	}

	err := s.store.Mutate(ctx, rec.ID, func(ctx context.Context, r client.Repositories) error {
		return r.Records.Upsert(ctx, rec)
	})
	if err != nil {
		return models.WarrantyRecord{}, err
	}

	s.log.Info(ctx, "record created", "record_id", rec.ID)
	s.recompute(ctx, rec)
	return rec, nil
}

// Update applies edit. Editing a record in Conflict counts as resolving it
// in favour of the edited content.
func (s *RecordService) Update(ctx context.Context, id string, edit RecordEdit) (models.WarrantyRecord, error) {
	var out models.WarrantyRecord

	err := s.store.Mutate(ctx, id, func(ctx context.Context, r client.Repositories) error {
		rec, err := liveRecord(ctx, r, id)
		if err != nil {
			return err
		}
		wasConflict := rec.SyncState == models.SyncStateConflict

		if edit.ProductName != nil {
			rec.ProductName = *edit.ProductName
		}
		if edit.PurchaseDate != nil {
			rec.PurchaseDate = *edit.PurchaseDate
		}
		switch {
		case edit.ExpirationDate != nil:
			rec.ExpirationDate = *edit.ExpirationDate
		case edit.WarrantyMonths != nil:
			rec.ExpirationDate = models.ExpirationFromMonths(rec.PurchaseDate, *edit.WarrantyMonths)
		}

		rec.UpdatedAt = nextTimestamp(s.clock, rec.UpdatedAt)
		if rec.SyncState != models.SyncStatePendingCreate {
			rec.SyncState = models.SyncStatePendingUpdate
		}
		if err := rec.Validate(); err != nil {
			return err
		}
		if err := r.Records.Upsert(ctx, rec); err != nil {
			return err
		}
		if wasConflict {
			if err := r.Conflicts.Resolve(ctx, id); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	if err != nil {
		return models.WarrantyRecord{}, err
	}

	s.log.Info(ctx, "record updated", "record_id", id)
	s.recompute(ctx, out)
	return out, nil
}

// Delete tombstones the record until the remote confirms the deletion.
// Records the remote has never seen are removed at once.
func (s *RecordService) Delete(ctx context.Context, id string) error {
	var rec models.WarrantyRecord

	err := s.store.Mutate(ctx, id, func(ctx context.Context, r client.Repositories) error {
		var err error
		rec, err = liveRecord(ctx, r, id)
		if err != nil {
			return err
		}
		if err := r.Conflicts.Resolve(ctx, id); err != nil {
			return err
		}

		if rec.SyncState == models.SyncStatePendingCreate && rec.BaseUpdatedAt.IsZero() {
			return r.Records.Delete(ctx, id)
		}
		rec.Deleted = true
		rec.UpdatedAt = nextTimestamp(s.clock, rec.UpdatedAt)
		rec.SyncState = models.SyncStatePendingDelete
		return r.Records.Upsert(ctx, rec)
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "record deleted", "record_id", id)
	s.recompute(ctx, rec)
	return nil
}

func (s *RecordService) Get(ctx context.Context, id string) (models.WarrantyRecord, error) {
	rec, err := s.store.Records.Get(ctx, id)
	if err != nil {
		return models.WarrantyRecord{}, err
	}
	if rec.Deleted {
		return models.WarrantyRecord{}, common.ErrNotFound
	}
	return rec, nil
}

// List returns the live records, soonest expiration first.
func (s *RecordService) List(ctx context.Context) ([]models.WarrantyRecord, error) {
	var out []models.WarrantyRecord
	for rec, err := range s.store.Records.ListAll(ctx) {
		if err != nil {
			return nil, err
		}
		if !rec.Deleted {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Conflicts returns the open conflict log entries.
func (s *RecordService) Conflicts(ctx context.Context) ([]models.ConflictEntry, error) {
	return s.store.Conflicts.ListUnresolved(ctx)
}

// ResolveConflict settles a record left in Conflict. keepLocal re-queues
// the content the user had before the conflict on top of the current
// remote version; otherwise the current content is accepted as is.
func (s *RecordService) ResolveConflict(ctx context.Context, id string, keepLocal bool) (models.WarrantyRecord, error) {
	var out models.WarrantyRecord

	err := s.store.Mutate(ctx, id, func(ctx context.Context, r client.Repositories) error {
		cur, err := r.Records.Get(ctx, id)
		if err != nil {
			return err
		}
		if cur.SyncState != models.SyncStateConflict {
			return ErrNoConflict
		}

		entry, err := r.Conflicts.LatestUnresolved(ctx, id)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}

		out = cur
		switch {
		case keepLocal:
			if entry.LocalSnapshot != nil {
				snap := *entry.LocalSnapshot
				out.ProductName = snap.ProductName
				out.PurchaseDate = snap.PurchaseDate
				out.ExpirationDate = snap.ExpirationDate
				out.ReceiptRef = snap.ReceiptRef
				out.Deleted = snap.Deleted
			}
			if out.Deleted && out.BaseUpdatedAt.IsZero() {
				out.SyncState = models.SyncStateClean
				if err := r.Records.Delete(ctx, id); err != nil {
					return err
				}
				break
			}
			out.UpdatedAt = nextTimestamp(s.clock, latest(cur.UpdatedAt, cur.BaseUpdatedAt))
			out.SyncState = models.SyncStatePendingUpdate
			if out.Deleted {
				out.SyncState = models.SyncStatePendingDelete
			}
			if err := r.Records.Upsert(ctx, out); err != nil {
				return err
			}

		case entry.Outcome == models.ConflictRejected && cur.BaseUpdatedAt.IsZero():
			// The remote never accepted this record; dropping it is all
			// that is left to do.
			out.Deleted = true
			out.SyncState = models.SyncStateClean
			if err := r.Records.Delete(ctx, id); err != nil {
				return err
			}

		default:
			out.SyncState = models.SyncStateClean
			if out.Deleted {
				if err := r.Records.Delete(ctx, id); err != nil {
					return err
				}
				break
			}
			if err := r.Records.Upsert(ctx, out); err != nil {
				return err
			}
		}
		return r.Conflicts.Resolve(ctx, id)
	})
	if err != nil {
		return models.WarrantyRecord{}, err
	}

	s.log.Info(ctx, "conflict resolved", "record_id", id, "keep_local", keepLocal)
	s.recompute(ctx, out)
	return out, nil
}

// AttachReceipt uploads blob to object storage and points the record at it.
func (s *RecordService) AttachReceipt(ctx context.Context, id string, blob []byte) (models.WarrantyRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return models.WarrantyRecord{}, err
	}

	ref, url, err := s.remote.ReceiptUploadURL(ctx)
	if err != nil {
		return models.WarrantyRecord{}, fmt.Errorf("get upload url: %w", err)
	}
	if err := netx.UploadToPresignedURL(ctx, s.http, url, blob); err != nil {
		return models.WarrantyRecord{}, fmt.Errorf("upload receipt: %w", err)
	}

	var out models.WarrantyRecord
	err = s.store.Mutate(ctx, id, func(ctx context.Context, r client.Repositories) error {
		rec, err := liveRecord(ctx, r, id)
		if err != nil {
			return err
		}
		rec.ReceiptRef = ref
		rec.UpdatedAt = nextTimestamp(s.clock, rec.UpdatedAt)
		if rec.SyncState != models.SyncStatePendingCreate {
			rec.SyncState = models.SyncStatePendingUpdate
		}
		out = rec
		return r.Records.Upsert(ctx, rec)
	})
	if err != nil {
		return models.WarrantyRecord{}, err
	}

	s.log.Info(ctx, "receipt attached", "record_id", id, "receipt_ref", ref, "size", len(blob))
	return out, nil
}

// ReceiptURL returns a short-lived download URL for the record's receipt.
func (s *RecordService) ReceiptURL(ctx context.Context, id string) (string, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.ReceiptRef == "" {
		return "", ErrNoReceipt
	}
	return s.remote.ReceiptDownloadURL(ctx, rec.ReceiptRef)
}

func (s *RecordService) DownloadReceipt(ctx context.Context, id string) ([]byte, error) {
	url, err := s.ReceiptURL(ctx, id)
	if err != nil {
		return nil, err
	}
	return netx.DownloadFromPresignedURL(ctx, s.http, url)
}

func (s *RecordService) recompute(ctx context.Context, rec models.WarrantyRecord) {
	if s.recomputer == nil {
		return
	}
	if err := s.recomputer.Recompute(ctx, []models.WarrantyRecord{rec}); err != nil {
		s.log.Error(ctx, "recompute trigger failed", "record_id", rec.ID, "error", err)
	}
}

func liveRecord(ctx context.Context, r client.Repositories, id string) (models.WarrantyRecord, error) {
	rec, err := r.Records.Get(ctx, id)
	if err != nil {
		return models.WarrantyRecord{}, err
	}
	if rec.Deleted {
		return models.WarrantyRecord{}, common.ErrNotFound
	}
	return rec, nil
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
