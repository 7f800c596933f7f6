package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/server/models"
	"github.com/dmitrijs2005/mywarranties/internal/server/repositories/repomanager"
)

var (
	t0       = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	purchase = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	expires  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

type publishEvent struct {
	owner string
	seq   int64
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishEvent
}

func (p *recordingPublisher) Publish(ownerID string, seq int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishEvent{ownerID, seq})
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// failingManager fails every transaction with err.
type failingManager struct {
	repomanager.RepositoryManager
	err error
}

func (m *failingManager) InTx(context.Context, func(context.Context, repomanager.Repositories) error) error {
	return m.err
}

func newSyncService(t *testing.T, pageSize int) (*SyncService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewSyncService(repomanager.NewMemoryRepositoryManager(), pub, pageSize, logging.Nop{}), pub
}

func record(id string, updatedAt time.Time) models.Record {
	return models.Record{
		ID:             id,
		ProductName:    "TV " + id,
		PurchaseDate:   purchase,
		ExpirationDate: expires,
		UpdatedAt:      updatedAt,
	}
}
