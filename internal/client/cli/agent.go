package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Run starts the background work and then the REPL. It returns when the
// user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warn(context.Background(), "close failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runner.Run(gctx, a.scheduler.Fire) })
	g.Go(func() error { a.syncLoop(gctx, a.config.SyncInterval); return nil })
	g.Go(func() error { a.subscribeLoop(gctx); return nil })
	g.Go(func() error { a.StartOnlineStatusWatcher(gctx, onlineCheckInterval); return nil })

	fmt.Fprintln(a.out, "MyWarranties agent (type 'help' for commands)")

	// The REPL is left out of the group: a blocked stdin read must not keep
	// Run from returning on a signal.
	replDone := make(chan struct{})
	go func() {
		defer close(replDone)
		runREPL(gctx, a, a.getStatus, a.reader, a.out)
	}()

	select {
	case <-replDone:
	case <-gctx.Done():
	}
	cancel()
	return g.Wait()
}

// start re-arms persisted reminders, runs the first reconciliation and
// recomputes the triggers from the reconciled records. Failures are logged;
// the agent works offline.
func (a *App) start(ctx context.Context) {
	if err := a.scheduler.Restore(ctx); err != nil {
		a.log.Error(ctx, "restore triggers failed", "error", err)
	}
	if _, err := a.engine.Cycle(ctx); err != nil {
		a.log.Warn(ctx, "initial sync failed", "error", err)
	}
	if err := a.scheduler.RecomputeAll(ctx); err != nil {
		a.log.Error(ctx, "recompute triggers failed", "error", err)
	}
}

// syncLoop runs a reconciliation cycle every interval.
func (a *App) syncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.engine.Cycle(ctx); err != nil && ctx.Err() == nil {
				a.log.Warn(ctx, "periodic sync failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// subscribeLoop keeps a hint subscription open and runs a cycle for every
// hint. Broken streams are reopened with capped exponential backoff; a
// stream that delivered a hint starts the backoff over.
func (a *App) subscribeLoop(ctx context.Context) {
	b := a.subscribeBackoff()
	for {
		hinted := false
		err := a.remote.Subscribe(ctx, func(c models.Cursor) {
			hinted = true
			a.log.Debug(ctx, "change hint", "cursor", c)
			if _, err := a.engine.Cycle(ctx); err != nil && ctx.Err() == nil {
				a.log.Warn(ctx, "hinted sync failed", "error", err)
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("subscription closed")
		}
		if hinted {
			b = a.subscribeBackoff()
		}

		delay, stop := b.Next()
		if stop {
			return
		}
		a.log.Debug(ctx, "subscription lost", "error", err, "retry_in", delay)

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

func (a *App) subscribeBackoff() retry.Backoff {
	b := retry.NewExponential(a.config.RetryBaseDelay)
	return retry.WithCappedDuration(a.config.RetryMaxDelay, b)
}
