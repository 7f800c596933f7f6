// Package common contains shared constants and sentinel errors used across
// MyWarranties components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// CursorMetadataKey is the metadata key under which the client persists the
// last applied remote change sequence.
const CursorMetadataKey = "sync_cursor"
