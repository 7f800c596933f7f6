// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/common"
)

// Record is the remote copy of a warranty record.
type Record struct {
	ID             string
	OwnerID        string
	ProductName    string
	PurchaseDate   time.Time
	ExpirationDate time.Time
	ReceiptRef     string
	// UpdatedAt is assigned by the server and orders versions of the record.
	UpdatedAt time.Time
	// ClientUpdatedAt is the timestamp the device pushed. A push carrying
	// the same value again is a replay.
	ClientUpdatedAt time.Time
	Deleted         bool
	// Seq is the owner's version counter value at the last write.
	Seq int64
}

// Validate checks the fields a push must carry. Tombstones only need an id.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", common.ErrInvalidRecord)
	}
	if r.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: missing updated_at", common.ErrInvalidRecord)
	}
	if r.Deleted {
		return nil
	}
	if strings.TrimSpace(r.ProductName) == "" {
		return fmt.Errorf("%w: empty product name", common.ErrInvalidRecord)
	}
	if r.ExpirationDate.Before(r.PurchaseDate) {
		return fmt.Errorf("%w: expiration %s before purchase %s", common.ErrInvalidRecord,
			r.ExpirationDate.Format(time.DateOnly), r.PurchaseDate.Format(time.DateOnly))
	}
	return nil
}
