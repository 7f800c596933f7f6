package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/client"
	"github.com/dmitrijs2005/mywarranties/internal/client/config"
	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/client/services"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecords struct {
	recordAPI

	created  services.NewRecord
	edited   services.RecordEdit
	deleted  string
	resolved struct {
		id        string
		keepLocal bool
	}
	attached []byte
	list     []models.WarrantyRecord
	get      models.WarrantyRecord
	getErr   error
	blob     []byte
	url      string
}

func (f *fakeRecords) Create(ctx context.Context, in services.NewRecord) (models.WarrantyRecord, error) {
	f.created = in
	exp := in.ExpirationDate
	if exp.IsZero() {
		exp = models.ExpirationFromMonths(in.PurchaseDate, in.WarrantyMonths)
	}
	return models.WarrantyRecord{ID: "new-id", ProductName: in.ProductName, ExpirationDate: exp}, nil
}

func (f *fakeRecords) Update(ctx context.Context, id string, edit services.RecordEdit) (models.WarrantyRecord, error) {
	f.edited = edit
	rec := f.get
	if edit.ExpirationDate != nil {
		rec.ExpirationDate = *edit.ExpirationDate
	}
	return rec, nil
}

func (f *fakeRecords) Delete(ctx context.Context, id string) error {
	f.deleted = id
	return nil
}

func (f *fakeRecords) Get(ctx context.Context, id string) (models.WarrantyRecord, error) {
	return f.get, f.getErr
}

func (f *fakeRecords) List(ctx context.Context) ([]models.WarrantyRecord, error) {
	return f.list, nil
}

func (f *fakeRecords) Conflicts(ctx context.Context) ([]models.ConflictEntry, error) {
	snap := f.get
	return []models.ConflictEntry{{RecordID: f.get.ID, Outcome: models.ConflictSurfaced, LocalSnapshot: &snap}}, nil
}

func (f *fakeRecords) ResolveConflict(ctx context.Context, id string, keepLocal bool) (models.WarrantyRecord, error) {
	f.resolved.id, f.resolved.keepLocal = id, keepLocal
	return models.WarrantyRecord{ID: id, SyncState: models.SyncStatePendingUpdate}, nil
}

func (f *fakeRecords) AttachReceipt(ctx context.Context, id string, blob []byte) (models.WarrantyRecord, error) {
	f.attached = blob
	return models.WarrantyRecord{ID: id, ReceiptRef: "receipts/o/1"}, nil
}

func (f *fakeRecords) ReceiptURL(ctx context.Context, id string) (string, error) {
	return f.url, nil
}

func (f *fakeRecords) DownloadReceipt(ctx context.Context, id string) ([]byte, error) {
	return f.blob, nil
}

type fakeSyncer struct {
	mu     sync.Mutex
	cycles int
	report services.CycleReport
	err    error
}

func (f *fakeSyncer) Cycle(ctx context.Context) (services.CycleReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles++
	return f.report, f.err
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles
}

type fakeTriggers []models.ReminderTrigger

func (f fakeTriggers) Triggers(ctx context.Context) ([]models.ReminderTrigger, error) {
	return f, nil
}

type fakeRemote struct {
	client.Client

	mu        sync.Mutex
	subscribe func(ctx context.Context, onHint func(models.Cursor)) error
	calls     int
	pingErr   error
}

func (f *fakeRemote) Subscribe(ctx context.Context, onHint func(models.Cursor)) error {
	f.mu.Lock()
	f.calls++
	fn := f.subscribe
	f.mu.Unlock()
	return fn(ctx, onHint)
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func newTestApp(input string) (*App, *fakeRecords, *fakeSyncer, *bytes.Buffer) {
	recs := &fakeRecords{}
	eng := &fakeSyncer{}
	out := &bytes.Buffer{}
	return &App{
		config: &config.Config{
			RetryBaseDelay: time.Second,
			RetryMaxDelay:  time.Minute,
		},
		log:     logging.Nop{},
		records: recs,
		engine:  eng,
		reader:  rdr(input),
		out:     out,
		mode:    ModeOffline,
	}, recs, eng, out
}

func TestApp_AddWithWarrantyLength(t *testing.T) {
	app, recs, _, out := newTestApp("Dishwasher\n2024-01-15\n\n24\n")

	require.NoError(t, app.Add(context.Background()))
	assert.Equal(t, "Dishwasher", recs.created.ProductName)
	assert.True(t, recs.created.PurchaseDate.Equal(timex.Date(2024, 1, 15)))
	assert.True(t, recs.created.ExpirationDate.IsZero())
	assert.Equal(t, 24, recs.created.WarrantyMonths)
	assert.Contains(t, out.String(), "Added new-id, expires 2026-01-15")
}

func TestApp_ListAndShow(t *testing.T) {
	app, recs, _, out := newTestApp("")
	ctx := context.Background()

	require.NoError(t, app.List(ctx))
	assert.Contains(t, out.String(), "No warranties yet.")

	recs.list = []models.WarrantyRecord{{
		ID: "r1", ProductName: "TV", ExpirationDate: timex.Date(2025, 1, 1), SyncState: models.SyncStateClean,
	}}
	recs.get = recs.list[0]
	out.Reset()
	require.NoError(t, app.List(ctx))
	assert.Contains(t, out.String(), "PRODUCT")
	assert.Contains(t, out.String(), "2025-01-01")

	out.Reset()
	require.NoError(t, app.Show(ctx, []string{"r1"}))
	assert.Contains(t, out.String(), "Product:    TV")
	assert.Contains(t, out.String(), "Receipt:    -")

	recs.getErr = common.ErrNotFound
	assert.ErrorIs(t, app.Show(ctx, []string{"nope"}), common.ErrNotFound)
}

func TestApp_EditKeepsEmptyAnswers(t *testing.T) {
	app, recs, _, out := newTestApp("\n\n2026-01-01\n")
	recs.get = models.WarrantyRecord{ID: "r1", ProductName: "TV", PurchaseDate: timex.Date(2024, 1, 1)}

	require.NoError(t, app.Edit(context.Background(), []string{"r1"}))
	assert.Nil(t, recs.edited.ProductName)
	assert.Nil(t, recs.edited.PurchaseDate)
	require.NotNil(t, recs.edited.ExpirationDate)
	assert.True(t, recs.edited.ExpirationDate.Equal(timex.Date(2026, 1, 1)))
	assert.Contains(t, out.String(), "Product name [TV]")
}

func TestApp_DeleteAndResolve(t *testing.T) {
	app, recs, _, _ := newTestApp("r2\n")
	ctx := context.Background()

	require.NoError(t, app.Delete(ctx, nil))
	assert.Equal(t, "r2", recs.deleted)

	require.NoError(t, app.Resolve(ctx, []string{"r1", "local"}))
	assert.Equal(t, "r1", recs.resolved.id)
	assert.True(t, recs.resolved.keepLocal)

	require.NoError(t, app.Resolve(ctx, []string{"r1", "remote"}))
	assert.False(t, recs.resolved.keepLocal)

	assert.Error(t, app.Resolve(ctx, []string{"r1", "both"}))
}

func TestApp_AttachAndSaveReceipt(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	app, recs, _, out := newTestApp("")
	ctx := context.Background()

	src := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF"), 0o600))

	require.NoError(t, app.Attach(ctx, []string{"r1", src}))
	assert.Equal(t, []byte("%PDF"), recs.attached)
	assert.Contains(t, out.String(), "receipts/o/1")

	recs.url = "https://bucket.example/r1?sig"
	out.Reset()
	require.NoError(t, app.Receipt(ctx, []string{"r1"}))
	assert.Equal(t, "https://bucket.example/r1?sig\n", out.String())

	recs.blob = []byte("%PDF")
	require.NoError(t, app.Receipt(ctx, []string{"r1", "save"}))
	b, err := os.ReadFile(filepath.Join(dir, receiptsDir, "r1.receipt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), b)

	assert.Error(t, app.Attach(ctx, []string{"r1", filepath.Join(dir, "missing.pdf")}))
}

func TestApp_SyncReportsRejections(t *testing.T) {
	app, _, eng, out := newTestApp("")
	eng.report = services.CycleReport{Pulled: 2, Pushed: 1, Rejected: []string{"r9"}}
	eng.err = common.ErrTransient

	err := app.Sync(context.Background())
	require.ErrorIs(t, err, common.ErrTransient)
	assert.Contains(t, out.String(), "pulled 2, pushed 1")
	assert.Contains(t, out.String(), "rejected by server: r9")
}

func TestApp_ConflictsAndTriggers(t *testing.T) {
	app, recs, _, out := newTestApp("")
	ctx := context.Background()
	recs.get = models.WarrantyRecord{ID: "r1", ProductName: "TV", ExpirationDate: timex.Date(2025, 1, 1)}

	require.NoError(t, app.Conflicts(ctx))
	assert.Contains(t, out.String(), "surfaced")
	assert.Contains(t, out.String(), "TV, expires 2025-01-01")

	app.triggers = fakeTriggers{{
		RecordID: "r1", FireAt: timex.Date(2024, 12, 18), ExpirationDate: timex.Date(2025, 1, 1), Generation: 2,
	}}
	out.Reset()
	require.NoError(t, app.Triggers(ctx))
	assert.Contains(t, out.String(), "2024-12-18")
	assert.Contains(t, out.String(), "false")
}

func TestApp_SyncLoopRunsEveryInterval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		app, _, eng, _ := newTestApp("")
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			defer close(done)
			app.syncLoop(ctx, time.Minute)
		}()

		time.Sleep(3*time.Minute + time.Second)
		synctest.Wait()
		assert.Equal(t, 3, eng.count())

		cancel()
		<-done
	})
}

func TestApp_SubscribeLoopCyclesOnHintsAndReconnects(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		app, _, eng, _ := newTestApp("")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		remote := &fakeRemote{}
		remote.subscribe = func(ctx context.Context, onHint func(models.Cursor)) error {
			remote.mu.Lock()
			n := remote.calls
			remote.mu.Unlock()

			onHint(models.Cursor(n))
			if n == 1 {
				return errors.Join(common.ErrTransient, errors.New("stream reset"))
			}
			<-ctx.Done()
			return ctx.Err()
		}
		app.remote = remote

		done := make(chan struct{})
		go func() {
			defer close(done)
			app.subscribeLoop(ctx)
		}()

		time.Sleep(10 * time.Second)
		synctest.Wait()
		assert.Equal(t, 2, eng.count())

		cancel()
		<-done
	})
}

func TestApp_SubscribeLoopResetsBackoffAfterHealthyStream(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		app, _, eng, _ := newTestApp("")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		remote := &fakeRemote{}
		remote.subscribe = func(ctx context.Context, onHint func(models.Cursor)) error {
			remote.mu.Lock()
			n := remote.calls
			remote.mu.Unlock()

			switch {
			case n <= 5:
				// Retried after 1s, 2s, 4s, 8s and 16s.
				return common.ErrTransient
			case n == 6:
				onHint(models.Cursor(n))
				return errors.Join(common.ErrTransient, errors.New("stream reset"))
			default:
				<-ctx.Done()
				return ctx.Err()
			}
		}
		app.remote = remote

		done := make(chan struct{})
		go func() {
			defer close(done)
			app.subscribeLoop(ctx)
		}()

		// The sixth attempt starts at 31s. After its hint the next retry
		// waits the base delay again rather than 32s.
		time.Sleep(33 * time.Second)
		synctest.Wait()

		remote.mu.Lock()
		calls := remote.calls
		remote.mu.Unlock()
		assert.Equal(t, 7, calls)
		assert.Equal(t, 1, eng.count())

		cancel()
		<-done
	})
}

func TestApp_OnlineStatusWatcher(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		app, _, _, _ := newTestApp("")
		remote := &fakeRemote{}
		app.remote = remote
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			defer close(done)
			app.StartOnlineStatusWatcher(ctx, time.Minute)
		}()

		synctest.Wait()
		assert.Equal(t, "(online)", app.getStatus())

		remote.mu.Lock()
		remote.pingErr = common.ErrTransient
		remote.mu.Unlock()
		time.Sleep(time.Minute)
		synctest.Wait()
		assert.Equal(t, "(offline)", app.getStatus())

		cancel()
		<-done
	})
}
