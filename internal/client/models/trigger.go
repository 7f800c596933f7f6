package models

import "time"

// ReminderTrigger is the scheduler's persisted reminder for one record.
// Generation changes every time FireAt or ExpirationDate is recomputed, so
// alarms armed for an older generation become no-ops.
type ReminderTrigger struct {
	RecordID       string
	FireAt         time.Time
	ExpirationDate time.Time
	Fired          bool
	Generation     int64
}

// Notification is what the dispatcher renders for the user.
type Notification struct {
	Title    string
	Body     string
	RecordID string
}
