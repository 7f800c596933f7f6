// Package models defines the warranty records, reminder triggers and sync
// bookkeeping types shared by the client repositories and services.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/common"
)

// SyncState tracks where a local record stands relative to the remote store.
type SyncState string

const (
	SyncStateClean         SyncState = "clean"
	SyncStatePendingCreate SyncState = "pending_create"
	SyncStatePendingUpdate SyncState = "pending_update"
	SyncStatePendingDelete SyncState = "pending_delete"
	SyncStateConflict      SyncState = "conflict"
)

// Pending reports whether the record carries a local mutation to push.
func (s SyncState) Pending() bool {
	switch s {
	case SyncStatePendingCreate, SyncStatePendingUpdate, SyncStatePendingDelete:
		return true
	}
	return false
}

func ParseSyncState(s string) (SyncState, error) {
	switch v := SyncState(s); v {
	case SyncStateClean, SyncStatePendingCreate, SyncStatePendingUpdate, SyncStatePendingDelete, SyncStateConflict:
		return v, nil
	}
	return "", fmt.Errorf("unknown sync state %q", s)
}

// WarrantyRecord is the on-device copy of a warranty.
type WarrantyRecord struct {
	ID             string
	OwnerID        string
	ProductName    string
	PurchaseDate   time.Time
	ExpirationDate time.Time
	// ReceiptRef is an object storage key; empty means no receipt.
	ReceiptRef string
	UpdatedAt  time.Time
	// BaseUpdatedAt is the remote UpdatedAt the pending mutation was made on.
	// Zero for records the remote has never seen.
	BaseUpdatedAt time.Time
	Deleted       bool
	SyncState     SyncState
}

// Validate checks the record-level invariants.
func (r WarrantyRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", common.ErrInvalidRecord)
	}
	if strings.TrimSpace(r.ProductName) == "" {
		return fmt.Errorf("%w: empty product name", common.ErrInvalidRecord)
	}
	if r.ExpirationDate.Before(r.PurchaseDate) {
		return fmt.Errorf("%w: expiration %s before purchase %s", common.ErrInvalidRecord,
			r.ExpirationDate.Format(time.DateOnly), r.PurchaseDate.Format(time.DateOnly))
	}
	if _, err := ParseSyncState(string(r.SyncState)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidRecord, err)
	}
	return nil
}

// ExpirationFromMonths derives an expiration date from a warranty length.
func ExpirationFromMonths(purchase time.Time, months int) time.Time {
	return purchase.AddDate(0, months, 0)
}

// SameContent compares the user-visible fields, ignoring sync bookkeeping.
func (r WarrantyRecord) SameContent(o WarrantyRecord) bool {
	return r.ID == o.ID &&
		r.OwnerID == o.OwnerID &&
		r.ProductName == o.ProductName &&
		r.PurchaseDate.Equal(o.PurchaseDate) &&
		r.ExpirationDate.Equal(o.ExpirationDate) &&
		r.ReceiptRef == o.ReceiptRef &&
		r.Deleted == o.Deleted
}
