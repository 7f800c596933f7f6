package services

import (
	"context"
	"iter"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/alarm"
	"github.com/dmitrijs2005/mywarranties/internal/client/client"
	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
	"github.com/stretchr/testify/require"
)

var (
	t0   = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	noop = logging.Nop{}
)

func newStore(t *testing.T) *client.Store {
	t.Helper()
	s, _ := newStoreAt(t)
	return s
}

func newStoreAt(t *testing.T) (*client.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.db")
	s, err := client.InitDatabase(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func localRecord(id string, state models.SyncState, updated, base time.Time) models.WarrantyRecord {
	return models.WarrantyRecord{
		ID: id, OwnerID: "owner-1", ProductName: "Local " + id,
		PurchaseDate:   timex.Date(2024, 1, 1),
		ExpirationDate: timex.Date(2025, 1, 1),
		UpdatedAt:      updated,
		BaseUpdatedAt:  base,
		SyncState:      state,
	}
}

func remoteRecord(id string, updated time.Time) models.RemoteRecord {
	return models.RemoteRecord{
		ID: id, OwnerID: "owner-1", ProductName: "Remote " + id,
		PurchaseDate:   timex.Date(2024, 1, 1),
		ExpirationDate: timex.Date(2025, 6, 1),
		UpdatedAt:      updated,
	}
}

// fakeRemote is an in-memory change feed and push sink. Unset hooks fall
// back to acknowledging every push with the record's own timestamp.
type fakeRemote struct {
	client.Client

	mu      sync.Mutex
	changes []models.RemoteChange
	fetches int
	pushes  []models.WarrantyRecord

	fetchStarted chan struct{}
	fetchGate    chan struct{}
	fetchErr     error
	pushFn       func(rec models.WarrantyRecord) (models.RemoteAck, error)

	uploadRef, uploadURL, downloadURL string
}

func (f *fakeRemote) addChange(rr models.RemoteRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq := models.Cursor(len(f.changes) + 1)
	rr.Seq = int64(seq)
	f.changes = append(f.changes, models.RemoteChange{Record: rr, Cursor: seq})
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeRemote) pushed() []models.WarrantyRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.WarrantyRecord(nil), f.pushes...)
}

func (f *fakeRemote) FetchChangesSince(ctx context.Context, cursor models.Cursor) iter.Seq2[models.RemoteChange, error] {
	return func(yield func(models.RemoteChange, error) bool) {
		f.mu.Lock()
		f.fetches++
		started, gate, ferr := f.fetchStarted, f.fetchGate, f.fetchErr
		f.fetchStarted = nil
		var todo []models.RemoteChange
		for _, c := range f.changes {
			if c.Cursor > cursor {
				todo = append(todo, c)
			}
		}
		f.mu.Unlock()

		if started != nil {
			close(started)
		}
		if gate != nil {
			<-gate
		}
		for _, c := range todo {
			if !yield(c, nil) {
				return
			}
		}
		if ferr != nil {
			yield(models.RemoteChange{}, ferr)
		}
	}
}

func (f *fakeRemote) Push(ctx context.Context, rec models.WarrantyRecord) (models.RemoteAck, error) {
	f.mu.Lock()
	f.pushes = append(f.pushes, rec)
	fn := f.pushFn
	f.mu.Unlock()

	if fn != nil {
		return fn(rec)
	}
	return models.RemoteAck{RemoteUpdatedAt: rec.UpdatedAt}, nil
}

func (f *fakeRemote) ReceiptUploadURL(ctx context.Context) (string, string, error) {
	return f.uploadRef, f.uploadURL, nil
}

func (f *fakeRemote) ReceiptDownloadURL(ctx context.Context, ref string) (string, error) {
	return f.downloadURL, nil
}

type fakeAlarm struct {
	mu      sync.Mutex
	tickets []alarm.Ticket
}

func (a *fakeAlarm) Arm(t alarm.Ticket) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tickets = append(a.tickets, t)
}

func (a *fakeAlarm) armed() []alarm.Ticket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]alarm.Ticket(nil), a.tickets...)
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type countingRecomputer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRecomputer) RecomputeAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func fastRetries(policy ConflictPolicy) EngineConfig {
	return EngineConfig{
		Policy:         policy,
		MaxPushRetries: 2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	}
}
