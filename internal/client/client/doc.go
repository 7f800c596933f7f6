// Package client contains the device-side building blocks for talking to the
// remote store and for opening the local database.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface): Ping,
//     FetchChangesSince, Push, Subscribe and the receipt URL helpers.
//  2. A gRPC implementation (see GRPCClient) that injects the bearer token
//     through unary and stream interceptors and maps gRPC status codes to
//     the sentinel errors in internal/common.
//  3. Local persistence bootstrap (InitDatabase) and the Store, which pairs
//     the SQLite repositories with per-record locks and transactions.
//
// # Error Handling
//
// Remote failures are reported as common.ErrTransient (retry later),
// common.ErrRejected (permanent) or common.ErrConflict (the remote moved
// since the record's base timestamp). Match them with errors.Is.
package client
