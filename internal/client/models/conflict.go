package models

import "time"

// ConflictOutcome says how a divergence between local and remote ended.
type ConflictOutcome string

const (
	// ConflictRemoteWins: the remote version replaced the local one.
	ConflictRemoteWins ConflictOutcome = "remote_wins"
	// ConflictLocalWins: local content was kept and re-queued for push.
	ConflictLocalWins ConflictOutcome = "local_wins"
	// ConflictSurfaced: the remote version was applied and the record
	// was left in Conflict for the user to resolve.
	ConflictSurfaced ConflictOutcome = "surfaced"
	// ConflictRejected: the remote refused the push permanently.
	ConflictRejected ConflictOutcome = "rejected"
)

// ConflictEntry is a conflict_log row. LocalSnapshot holds the local record
// as it was before the conflict was handled.
type ConflictEntry struct {
	ID              int64
	RecordID        string
	Outcome         ConflictOutcome
	LocalUpdatedAt  time.Time
	RemoteUpdatedAt time.Time
	LocalSnapshot   *WarrantyRecord
	Resolved        bool
	CreatedAt       time.Time
}
