package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/alarm"
	"github.com/dmitrijs2005/mywarranties/internal/client/client"
	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/client/notify"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
)

const DefaultLeadTime = 14 * 24 * time.Hour

// Alarm is the background timer collaborator; alarm.Runner implements it.
type Alarm interface {
	Arm(t alarm.Ticket)
}

// Scheduler derives one reminder trigger per live record and fires each
// trigger at most once. Triggers carry a generation that changes whenever
// the fire time is recomputed, so alarms armed for an older generation are
// ignored when they go off.
type Scheduler struct {
	store      *client.Store
	alarm      Alarm
	dispatcher notify.Dispatcher
	clock      timex.Clock
	leadTime   time.Duration
	log        logging.Logger
}

func NewScheduler(store *client.Store, a Alarm, d notify.Dispatcher, clock timex.Clock, leadTime time.Duration, log logging.Logger) *Scheduler {
	if leadTime <= 0 {
		leadTime = DefaultLeadTime
	}
	return &Scheduler{
		store:      store,
		alarm:      a,
		dispatcher: d,
		clock:      clock,
		leadTime:   leadTime,
		log:        log.With("component", "scheduler"),
	}
}

// FireAt returns when the reminder for an expiration date is due.
func (s *Scheduler) FireAt(expiration time.Time) time.Time {
	return expiration.Add(-s.leadTime)
}

// Recompute brings the triggers of recs in line with their expiration
// dates. Records are re-read under their lock, so a stale slice is fine.
func (s *Scheduler) Recompute(ctx context.Context, recs []models.WarrantyRecord) error {
	var errs []error
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.recomputeOne(ctx, rec.ID); err != nil {
			errs = append(errs, fmt.Errorf("recompute %s: %w", rec.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) recomputeOne(ctx context.Context, id string) error {
	var ticket *alarm.Ticket

	err := s.store.Mutate(ctx, id, func(ctx context.Context, r client.Repositories) error {
		ticket = nil

		rec, err := r.Records.Get(ctx, id)
		if errors.Is(err, common.ErrNotFound) || (err == nil && rec.Deleted) {
			return r.Triggers.Delete(ctx, id)
		}
		if err != nil {
			return err
		}

		fireAt := s.FireAt(rec.ExpirationDate)
		current, err := r.Triggers.Get(ctx, id)
		switch {
		case errors.Is(err, common.ErrNotFound):
			current = models.ReminderTrigger{RecordID: id}
		case err != nil:
			return err
		case current.FireAt.Equal(fireAt) && current.ExpirationDate.Equal(rec.ExpirationDate):
			if !current.Fired {
				ticket = &alarm.Ticket{RecordID: id, Generation: current.Generation, FireAt: current.FireAt}
			}
			return nil
		}

		next := models.ReminderTrigger{
			RecordID:       id,
			FireAt:         fireAt,
			ExpirationDate: rec.ExpirationDate,
			Generation:     current.Generation + 1,
		}
		if err := r.Triggers.Put(ctx, next); err != nil {
			return err
		}
		ticket = &alarm.Ticket{RecordID: id, Generation: next.Generation, FireAt: next.FireAt}
		return nil
	})
	if err != nil {
		return err
	}

	if ticket != nil {
		s.alarm.Arm(*ticket)
	}
	return nil
}

// RecomputeAll recomputes every stored record and drops triggers whose
// record no longer exists.
func (s *Scheduler) RecomputeAll(ctx context.Context) error {
	var recs []models.WarrantyRecord
	for rec, err := range s.store.Records.ListAll(ctx) {
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		recs = append(recs, rec)
	}

	err := s.Recompute(ctx, recs)

	live := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		live[rec.ID] = struct{}{}
	}
	all, lerr := s.store.Triggers.ListAll(ctx)
	if lerr != nil {
		return errors.Join(err, fmt.Errorf("list triggers: %w", lerr))
	}
	for _, t := range all {
		if _, ok := live[t.RecordID]; ok {
			continue
		}
		// recomputeOne re-checks the record under its lock.
		if rerr := s.recomputeOne(ctx, t.RecordID); rerr != nil {
			err = errors.Join(err, fmt.Errorf("recompute %s: %w", t.RecordID, rerr))
		}
	}
	return err
}

// Restore arms the persisted unfired triggers after a restart. An
// unreadable trigger table is wiped and rebuilt from the records.
func (s *Scheduler) Restore(ctx context.Context) error {
	pending, err := s.store.Triggers.ListUnfired(ctx)
	if err != nil {
		s.log.Warn(ctx, "trigger table unreadable, rebuilding", "error", err)
		if cerr := s.store.Triggers.Clear(ctx); cerr != nil {
			return errors.Join(err, fmt.Errorf("clear triggers: %w", cerr))
		}
		return s.RecomputeAll(ctx)
	}

	for _, t := range pending {
		s.alarm.Arm(alarm.Ticket{RecordID: t.RecordID, Generation: t.Generation, FireAt: t.FireAt})
	}
	s.log.Info(ctx, "triggers restored", "armed", len(pending))
	return nil
}

// OnFire is called by the alarm when a ticket is due. It dispatches the
// reminder only for the current, unfired generation of a live record, and
// only once now has reached FireAt. The fired flag is committed before the
// notification goes out, so a crash in between loses the reminder rather
// than repeating it. The returned bool reports whether a notification was
// dispatched.
func (s *Scheduler) OnFire(ctx context.Context, recordID string, generation int64) (bool, error) {
	var (
		n     models.Notification
		fire  bool
		early *alarm.Ticket
	)

	err := s.store.Mutate(ctx, recordID, func(ctx context.Context, r client.Repositories) error {
		fire, early = false, nil

		t, err := r.Triggers.Get(ctx, recordID)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if t.Fired || t.Generation != generation {
			return nil
		}
		if s.clock.Now().Before(t.FireAt) {
			early = &alarm.Ticket{RecordID: recordID, Generation: generation, FireAt: t.FireAt}
			return nil
		}

		rec, err := r.Records.Get(ctx, recordID)
		if errors.Is(err, common.ErrNotFound) || (err == nil && rec.Deleted) {
			return nil
		}
		if err != nil {
			return err
		}

		ok, err := r.Triggers.MarkFired(ctx, recordID, generation)
		if err != nil || !ok {
			return err
		}
		n, fire = notify.Render(rec), true
		return nil
	})
	if err != nil {
		return false, err
	}

	if early != nil {
		s.alarm.Arm(*early)
		return false, nil
	}
	if !fire {
		s.log.Debug(ctx, "stale or duplicate fire ignored", "record_id", recordID, "generation", generation)
		return false, nil
	}

	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		return true, fmt.Errorf("dispatch reminder for %s: %w", recordID, err)
	}
	s.log.Info(ctx, "reminder dispatched", "record_id", recordID, "generation", generation)
	return true, nil
}

// Fire adapts OnFire to alarm.FireFunc.
func (s *Scheduler) Fire(ctx context.Context, t alarm.Ticket) {
	if _, err := s.OnFire(ctx, t.RecordID, t.Generation); err != nil {
		s.log.Error(ctx, "reminder failed", "record_id", t.RecordID, "error", err)
	}
}

// Triggers lists the persisted triggers, earliest first.
func (s *Scheduler) Triggers(ctx context.Context) ([]models.ReminderTrigger, error) {
	return s.store.Triggers.ListAll(ctx)
}
