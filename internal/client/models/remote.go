package models

import "time"

// Cursor is the highest remote change sequence applied locally.
type Cursor int64

// RemoteRecord is a record as the remote store holds it.
type RemoteRecord struct {
	ID             string
	OwnerID        string
	ProductName    string
	PurchaseDate   time.Time
	ExpirationDate time.Time
	ReceiptRef     string
	UpdatedAt      time.Time
	Deleted        bool
	Seq            int64
}

// RemoteChange is one element of a change feed. Cursor is the position
// reached once this change has been applied.
type RemoteChange struct {
	Record RemoteRecord
	Cursor Cursor
}

type RemoteAck struct {
	RemoteUpdatedAt time.Time
}

// Local converts the remote copy into a local row in the given state,
// based on the remote timestamp.
func (r RemoteRecord) Local(state SyncState) WarrantyRecord {
	return WarrantyRecord{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		ProductName:    r.ProductName,
		PurchaseDate:   r.PurchaseDate,
		ExpirationDate: r.ExpirationDate,
		ReceiptRef:     r.ReceiptRef,
		UpdatedAt:      r.UpdatedAt,
		BaseUpdatedAt:  r.UpdatedAt,
		Deleted:        r.Deleted,
		SyncState:      state,
	}
}
