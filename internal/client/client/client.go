package client

import (
	"context"
	"iter"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error

	// FetchChangesSince lazily pages through every remote change with a
	// sequence above cursor. Each change carries the cursor reached after
	// it. An error ends the sequence.
	FetchChangesSince(ctx context.Context, cursor models.Cursor) iter.Seq2[models.RemoteChange, error]

	// Push sends one local mutation. Replaying the same (id, updatedAt)
	// is acknowledged with the stored remote timestamp.
	Push(ctx context.Context, rec models.WarrantyRecord) (models.RemoteAck, error)

	// Subscribe blocks, calling onHint for every "records changed" hint,
	// until the stream ends or ctx is done.
	Subscribe(ctx context.Context, onHint func(models.Cursor)) error

	ReceiptUploadURL(ctx context.Context) (receiptRef string, url string, err error)
	ReceiptDownloadURL(ctx context.Context, receiptRef string) (string, error)
}
