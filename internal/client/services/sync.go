package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/client"
	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
	"github.com/sethvargo/go-retry"
)

// ConflictPolicy decides what happens to a local record that lost a
// last-writer-wins comparison against the remote.
type ConflictPolicy string

const (
	// PolicyRemoteWins takes the remote content and marks the record Clean.
	PolicyRemoteWins ConflictPolicy = "remote_wins"
	// PolicySurface takes the remote content but leaves the record in
	// Conflict until the user resolves it.
	PolicySurface ConflictPolicy = "surface"
)

type EngineConfig struct {
	Policy         ConflictPolicy
	MaxPushRetries int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Recomputer rebuilds reminder triggers after a cycle changed local records.
type Recomputer interface {
	RecomputeAll(ctx context.Context) error
}

// CycleReport summarizes one reconciliation pass.
type CycleReport struct {
	// Cursor is the position after the last applied remote change.
	Cursor models.Cursor
	// Pulled counts remote changes written locally; Skipped counts echoes.
	Pulled    int
	Skipped   int
	Conflicts int
	Pushed    int
	Purged    int
	// Deferred counts pending records left for a later cycle.
	Deferred int
	// Rejected lists records the remote refused; they are now in Conflict.
	Rejected []string
}

// Changed reports whether the cycle touched record content.
func (r CycleReport) Changed() bool {
	return r.Pulled > 0 || r.Conflicts > 0 || r.Purged > 0 || len(r.Rejected) > 0
}

type cycleCall struct {
	done   chan struct{}
	report CycleReport
	err    error
}

// Engine reconciles the local store with the remote store: pull remote
// changes past a cursor, push pending local mutations, purge acknowledged
// tombstones. Cycles never overlap.
type Engine struct {
	store      *client.Store
	remote     client.Client
	recomputer Recomputer
	clock      timex.Clock
	log        logging.Logger
	cfg        EngineConfig

	mu       sync.Mutex
	inflight *cycleCall
}

// NewEngine wires an engine. recomputer may be nil.
func NewEngine(store *client.Store, remote client.Client, recomputer Recomputer, clock timex.Clock, log logging.Logger, cfg EngineConfig) *Engine {
	if cfg.Policy == "" {
		cfg.Policy = PolicyRemoteWins
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	return &Engine{
		store:      store,
		remote:     remote,
		recomputer: recomputer,
		clock:      clock,
		log:        log.With("component", "sync"),
		cfg:        cfg,
	}
}

// Cycle runs one reconciliation against the persisted cursor and stores the
// cursor it reached. Callers arriving while a cycle is in flight wait for
// that cycle and share its result.
func (e *Engine) Cycle(ctx context.Context) (CycleReport, error) {
	e.mu.Lock()
	if c := e.inflight; c != nil {
		e.mu.Unlock()
		select {
		case <-c.done:
			return c.report, c.err
		case <-ctx.Done():
			return CycleReport{}, ctx.Err()
		}
	}
	c := &cycleCall{done: make(chan struct{})}
	e.inflight = c
	e.mu.Unlock()

	c.report, c.err = e.runCycle(ctx)

	e.mu.Lock()
	e.inflight = nil
	e.mu.Unlock()
	close(c.done)

	return c.report, c.err
}

func (e *Engine) runCycle(ctx context.Context) (CycleReport, error) {
	cursor, err := metadata.LoadCursor(ctx, e.store.Metadata)
	if err != nil {
		return CycleReport{}, fmt.Errorf("load cursor: %w", err)
	}

	report, err := e.Reconcile(ctx, cursor)

	if report.Cursor > cursor {
		if serr := metadata.SaveCursor(ctx, e.store.Metadata, report.Cursor); serr != nil {
			err = errors.Join(err, fmt.Errorf("save cursor: %w", serr))
		}
	}

	if report.Changed() && e.recomputer != nil {
		if rerr := e.recomputer.RecomputeAll(ctx); rerr != nil {
			e.log.Error(ctx, "recompute triggers failed", "error", rerr)
		}
	}

	if err != nil {
		e.log.Warn(ctx, "sync cycle incomplete", "error", err, "cursor", report.Cursor)
	} else {
		e.log.Info(ctx, "sync cycle finished",
			"cursor", report.Cursor, "pulled", report.Pulled, "skipped", report.Skipped,
			"conflicts", report.Conflicts, "pushed", report.Pushed, "purged", report.Purged,
			"deferred", report.Deferred, "rejected", len(report.Rejected))
	}
	return report, err
}

// Reconcile runs one pass starting at cursor. Work committed before an
// error stays committed; report.Cursor only covers applied changes.
func (e *Engine) Reconcile(ctx context.Context, cursor models.Cursor) (CycleReport, error) {
	report := CycleReport{Cursor: cursor}

	if err := e.pull(ctx, cursor, &report); err != nil {
		return report, fmt.Errorf("pull: %w", err)
	}
	if err := e.push(ctx, &report); err != nil {
		return report, fmt.Errorf("push: %w", err)
	}
	return report, nil
}

func (e *Engine) pull(ctx context.Context, cursor models.Cursor, report *CycleReport) error {
	for change, err := range e.remote.FetchChangesSince(ctx, cursor) {
		if err != nil {
			return err
		}
		if err := e.applyRemote(ctx, change.Record, report); err != nil {
			return fmt.Errorf("apply %s: %w", change.Record.ID, err)
		}
		report.Cursor = change.Cursor
	}
	return nil
}

func (e *Engine) applyRemote(ctx context.Context, rr models.RemoteRecord, report *CycleReport) error {
	return e.store.Mutate(ctx, rr.ID, func(ctx context.Context, r client.Repositories) error {
		local, err := r.Records.Get(ctx, rr.ID)
		if errors.Is(err, common.ErrNotFound) {
			if rr.Deleted {
				report.Skipped++
				return nil
			}
			report.Pulled++
			return r.Records.Upsert(ctx, rr.Local(models.SyncStateClean))
		}
		if err != nil {
			return err
		}

		switch {
		case local.SyncState == models.SyncStateClean:
			if !rr.UpdatedAt.After(local.UpdatedAt) {
				report.Skipped++
				return nil
			}
			report.Pulled++
			if rr.Deleted {
				return r.Records.Delete(ctx, rr.ID)
			}
			return r.Records.Upsert(ctx, rr.Local(models.SyncStateClean))

		case !rr.UpdatedAt.After(local.BaseUpdatedAt):
			// The remote has not moved since the local mutation was made.
			report.Skipped++
			return nil

		case isLateAck(local, rr):
			return e.settleLateAck(ctx, r, local, rr, report)

		case local.SyncState == models.SyncStateConflict:
			return e.refreshConflicted(ctx, r, local, rr, report)

		default:
			return e.resolve(ctx, r, local, rr, report)
		}
	})
}

// isLateAck reports whether rr is the remote copy of local's own pending
// mutation, pushed earlier but never acknowledged.
func isLateAck(local models.WarrantyRecord, rr models.RemoteRecord) bool {
	if !local.SyncState.Pending() || rr.UpdatedAt.Before(local.UpdatedAt) {
		return false
	}
	return rr.Local(local.SyncState).SameContent(local)
}

func (e *Engine) settleLateAck(ctx context.Context, r client.Repositories, local models.WarrantyRecord, rr models.RemoteRecord, report *CycleReport) error {
	report.Skipped++
	if _, err := r.Records.MarkSynced(ctx, local.ID, local.UpdatedAt, rr.UpdatedAt); err != nil {
		return err
	}
	if local.Deleted {
		if err := r.Records.PurgeTombstone(ctx, local.ID); err != nil {
			return err
		}
		report.Purged++
	}
	e.log.Debug(ctx, "pending mutation already applied remotely", "record_id", local.ID)
	return nil
}

// resolve settles a pending local mutation against a newer remote version
// by last-writer-wins on UpdatedAt. Ties go to the remote.
func (e *Engine) resolve(ctx context.Context, r client.Repositories, local models.WarrantyRecord, rr models.RemoteRecord, report *CycleReport) error {
	report.Conflicts++
	snapshot := local
	entry := models.ConflictEntry{
		RecordID:        local.ID,
		LocalUpdatedAt:  local.UpdatedAt,
		RemoteUpdatedAt: rr.UpdatedAt,
		LocalSnapshot:   &snapshot,
		CreatedAt:       e.clock.Now(),
	}

	var err error
	switch {
	case local.UpdatedAt.After(rr.UpdatedAt):
		entry.Outcome = models.ConflictLocalWins
		entry.Resolved = true
		rebased := local
		rebased.BaseUpdatedAt = rr.UpdatedAt
		if rebased.SyncState == models.SyncStatePendingCreate {
			rebased.SyncState = models.SyncStatePendingUpdate
		}
		err = r.Records.Upsert(ctx, rebased)

	case e.cfg.Policy == PolicySurface:
		entry.Outcome = models.ConflictSurfaced
		err = r.Records.Upsert(ctx, rr.Local(models.SyncStateConflict))

	default:
		entry.Outcome = models.ConflictRemoteWins
		entry.Resolved = true
		if rr.Deleted {
			err = r.Records.Delete(ctx, rr.ID)
		} else {
			err = r.Records.Upsert(ctx, rr.Local(models.SyncStateClean))
		}
	}
	if err != nil {
		return err
	}

	if _, err := r.Conflicts.Add(ctx, entry); err != nil {
		return err
	}
	e.log.Info(ctx, "conflict", "record_id", local.ID, "outcome", entry.Outcome,
		"local_updated_at", local.UpdatedAt, "remote_updated_at", rr.UpdatedAt)
	return nil
}

// refreshConflicted keeps a record that awaits the user in step with the
// remote. The open conflict entry, and its snapshot of the user's content,
// is left untouched.
func (e *Engine) refreshConflicted(ctx context.Context, r client.Repositories, local models.WarrantyRecord, rr models.RemoteRecord, report *CycleReport) error {
	report.Pulled++
	if err := r.Records.Upsert(ctx, rr.Local(models.SyncStateConflict)); err != nil {
		return err
	}

	_, err := r.Conflicts.LatestUnresolved(ctx, local.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}
	snapshot := local
	_, err = r.Conflicts.Add(ctx, models.ConflictEntry{
		RecordID:        local.ID,
		Outcome:         models.ConflictSurfaced,
		LocalUpdatedAt:  local.UpdatedAt,
		RemoteUpdatedAt: rr.UpdatedAt,
		LocalSnapshot:   &snapshot,
		CreatedAt:       e.clock.Now(),
	})
	return err
}

func (e *Engine) push(ctx context.Context, report *CycleReport) error {
	pending, err := e.store.Records.ListPending(ctx)
	if err != nil {
		return err
	}

	for i, rec := range pending {
		ack, err := e.pushWithRetry(ctx, rec)
		switch {
		case err == nil:
			if err := e.acknowledge(ctx, rec, ack, report); err != nil {
				return fmt.Errorf("acknowledge %s: %w", rec.ID, err)
			}
		case errors.Is(err, common.ErrRejected):
			if err := e.reject(ctx, rec, err, report); err != nil {
				return fmt.Errorf("reject %s: %w", rec.ID, err)
			}
		case errors.Is(err, common.ErrConflict):
			// The remote moved past our base; the next pull settles it.
			report.Deferred++
		default:
			report.Deferred += len(pending) - i
			return fmt.Errorf("push %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (e *Engine) pushWithRetry(ctx context.Context, rec models.WarrantyRecord) (models.RemoteAck, error) {
	b := retry.NewExponential(e.cfg.RetryBaseDelay)
	b = retry.WithCappedDuration(e.cfg.RetryMaxDelay, b)
	b = retry.WithMaxRetries(uint64(e.cfg.MaxPushRetries), b)

	var ack models.RemoteAck
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		a, err := e.remote.Push(ctx, rec)
		if errors.Is(err, common.ErrTransient) {
			e.log.Debug(ctx, "push failed, retrying", "record_id", rec.ID, "error", err)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		ack = a
		return nil
	})
	return ack, err
}

func (e *Engine) acknowledge(ctx context.Context, rec models.WarrantyRecord, ack models.RemoteAck, report *CycleReport) error {
	return e.store.Mutate(ctx, rec.ID, func(ctx context.Context, r client.Repositories) error {
		cleared, err := r.Records.MarkSynced(ctx, rec.ID, rec.UpdatedAt, ack.RemoteUpdatedAt)
		if errors.Is(err, common.ErrNotFound) {
			report.Pushed++
			if rec.Deleted {
				return nil
			}
			// Purged locally while its create was in flight: delete it remotely too.
			tomb := rec
			tomb.Deleted = true
			tomb.UpdatedAt = nextTimestamp(e.clock, ack.RemoteUpdatedAt)
			tomb.BaseUpdatedAt = ack.RemoteUpdatedAt
			tomb.SyncState = models.SyncStatePendingDelete
			return r.Records.Upsert(ctx, tomb)
		}
		if err != nil {
			return err
		}

		report.Pushed++
		if !cleared {
			report.Deferred++
			return nil
		}
		if rec.Deleted {
			if err := r.Records.PurgeTombstone(ctx, rec.ID); err != nil {
				return err
			}
			report.Purged++
		}
		return nil
	})
}

func (e *Engine) reject(ctx context.Context, rec models.WarrantyRecord, cause error, report *CycleReport) error {
	err := e.store.Mutate(ctx, rec.ID, func(ctx context.Context, r client.Repositories) error {
		current, err := r.Records.Get(ctx, rec.ID)
		if err != nil {
			return err
		}
		if err := r.Records.MarkConflict(ctx, rec.ID); err != nil {
			return err
		}
		_, err = r.Conflicts.Add(ctx, models.ConflictEntry{
			RecordID:        rec.ID,
			Outcome:         models.ConflictRejected,
			LocalUpdatedAt:  current.UpdatedAt,
			RemoteUpdatedAt: current.BaseUpdatedAt,
			LocalSnapshot:   &current,
			CreatedAt:       e.clock.Now(),
		})
		return err
	})
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	report.Rejected = append(report.Rejected, rec.ID)
	e.log.Warn(ctx, "push rejected", "record_id", rec.ID, "error", cause)
	return nil
}

// nextTimestamp returns the clock's now, or after+1µs when the clock lags,
// so a record's UpdatedAt never goes backwards.
func nextTimestamp(clock timex.Clock, after time.Time) time.Time {
	now := clock.Now().UTC().Truncate(time.Microsecond)
	if floor := after.Add(time.Microsecond); now.Before(floor) {
		return floor
	}
	return now
}
