// Package config loads runtime configuration for the MyWarranties device agent.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the remote store gRPC endpoint
//	-d string   SQLite database path
//	-o string   owner id
//	-t string   access token (JWT)
//	-i int      sync interval (minutes)
//	-l int      reminder lead time (days)
//	-r int      push retries per cycle
//	-p string   conflict policy: remote_wins or surface
//	-log string log file; empty logs to stderr
//
// # JSON schema
//
// Durations use timex.Duration, so they may be strings like "500ms" or
// integer nanoseconds. Keys absent from the file keep their previous value:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "database_dsn": "mywarranties.db",
//	  "owner_id": "alice",
//	  "access_token": "eyJ...",
//	  "sync_interval_minutes": 15,
//	  "lead_time_days": 14,
//	  "max_push_retries": 3,
//	  "retry_base_delay": "500ms",
//	  "retry_max_delay": "30s",
//	  "conflict_policy": "remote_wins",
//	  "log_file": "mywarranties.log",
//	  "log_level": "info"
//	}
package config
