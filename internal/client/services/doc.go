// Package services holds the device agent's application services: the
// reconciliation engine that syncs the local store with the remote one, the
// expiration scheduler that owns reminder triggers, and the record service
// used by the interactive shell.
package services
