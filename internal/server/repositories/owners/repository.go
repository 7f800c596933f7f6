package owners

import "context"

type Repository interface {
	// Lock creates the owner row if needed and holds it until the
	// transaction ends, serializing writes of one owner. It returns the
	// owner's current version.
	Lock(ctx context.Context, ownerID string) (int64, error)
	// CurrentVersion reads the owner's version without locking. An owner
	// with no row is at version 0.
	CurrentVersion(ctx context.Context, ownerID string) (int64, error)
	// IncrementCurrentVersion bumps and returns the owner's version.
	IncrementCurrentVersion(ctx context.Context, ownerID string) (int64, error)
}
