package client

import (
	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/wire"
)

func toWire(rec models.WarrantyRecord) wire.Record {
	return wire.Record{
		ID:             rec.ID,
		OwnerID:        rec.OwnerID,
		ProductName:    rec.ProductName,
		PurchaseDate:   rec.PurchaseDate,
		ExpirationDate: rec.ExpirationDate,
		ReceiptRef:     rec.ReceiptRef,
		UpdatedAt:      rec.UpdatedAt,
		BaseUpdatedAt:  rec.BaseUpdatedAt,
		Deleted:        rec.Deleted,
	}
}

func fromWire(r wire.Record) models.RemoteRecord {
	return models.RemoteRecord{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		ProductName:    r.ProductName,
		PurchaseDate:   r.PurchaseDate.UTC(),
		ExpirationDate: r.ExpirationDate.UTC(),
		ReceiptRef:     r.ReceiptRef,
		UpdatedAt:      r.UpdatedAt.UTC(),
		Deleted:        r.Deleted,
		Seq:            r.Seq,
	}
}
