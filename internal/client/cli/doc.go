// Package cli is the MyWarranties device agent.
//
// App wires configuration, the local SQLite store, the gRPC sync client, the
// reconciliation engine, and the reminder scheduler. Run starts the
// background work under one errgroup (alarm runner, periodic sync, change
// hint subscription, connectivity watcher) and then an interactive REPL for
// managing warranties:
//
//   - add / list / show / edit / delete
//   - attach and fetch receipts
//   - sync on demand, review and resolve conflicts
//   - inspect reminder triggers
//
// Everything works offline; changes reach the server on the next cycle.
package cli
