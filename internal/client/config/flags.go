package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/flagx"
)

// parseFlags populates Config from command-line flags it knows about,
// ignoring any others. Panics on malformed values.
func parseFlags(cfg *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "SQLite database path")
	fs.StringVar(&cfg.OwnerID, "o", cfg.OwnerID, "owner id")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	syncInterval := fs.Int("i", int(cfg.SyncInterval/time.Minute), "sync interval (in minutes)")
	fs.IntVar(&cfg.LeadTimeDays, "l", cfg.LeadTimeDays, "reminder lead time (in days)")
	fs.IntVar(&cfg.MaxPushRetries, "r", cfg.MaxPushRetries, "push retries per cycle")
	fs.StringVar(&cfg.ConflictPolicy, "p", cfg.ConflictPolicy, "conflict policy: remote_wins or surface")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "log file (empty logs to stderr)")

	if err := flagx.ParseKnown(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Minute
}
