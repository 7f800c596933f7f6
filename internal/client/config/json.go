package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/flagx"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DatabaseDSN         string         `json:"database_dsn"`
	OwnerID             string         `json:"owner_id"`
	AccessToken         string         `json:"access_token"`
	SyncIntervalMinutes int            `json:"sync_interval_minutes"`
	LeadTimeDays        int            `json:"lead_time_days"`
	MaxPushRetries      int            `json:"max_push_retries"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay"`
	RetryMaxDelay       timex.Duration `json:"retry_max_delay"`
	ConflictPolicy      string         `json:"conflict_policy"`
	LogFile             string         `json:"log_file"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays cfg with the JSON file named by -c/-config. The DTO is
// seeded from cfg so keys missing from the file keep their current values.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	jc := JsonConfig{
		ServerEndpointAddr:  cfg.ServerEndpointAddr,
		DatabaseDSN:         cfg.DatabaseDSN,
		OwnerID:             cfg.OwnerID,
		AccessToken:         cfg.AccessToken,
		SyncIntervalMinutes: int(cfg.SyncInterval / time.Minute),
		LeadTimeDays:        cfg.LeadTimeDays,
		MaxPushRetries:      cfg.MaxPushRetries,
		RetryBaseDelay:      timex.Duration{Duration: cfg.RetryBaseDelay},
		RetryMaxDelay:       timex.Duration{Duration: cfg.RetryMaxDelay},
		ConflictPolicy:      cfg.ConflictPolicy,
		LogFile:             cfg.LogFile,
		LogLevel:            cfg.LogLevel,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	cfg.DatabaseDSN = jc.DatabaseDSN
	cfg.OwnerID = jc.OwnerID
	cfg.AccessToken = jc.AccessToken
	cfg.SyncInterval = time.Duration(jc.SyncIntervalMinutes) * time.Minute
	cfg.LeadTimeDays = jc.LeadTimeDays
	cfg.MaxPushRetries = jc.MaxPushRetries
	cfg.RetryBaseDelay = jc.RetryBaseDelay.Duration
	cfg.RetryMaxDelay = jc.RetryMaxDelay.Duration
	cfg.ConflictPolicy = jc.ConflictPolicy
	cfg.LogFile = jc.LogFile
	cfg.LogLevel = jc.LogLevel
}
