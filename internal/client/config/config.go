package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	PolicyRemoteWins = "remote_wins"
	PolicySurface    = "surface"
)

// Config holds runtime settings for the device agent.
type Config struct {
	ServerEndpointAddr string
	DatabaseDSN        string
	OwnerID            string
	AccessToken        string
	SyncInterval       time.Duration
	LeadTimeDays       int
	MaxPushRetries     int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	ConflictPolicy     string
	LogFile            string
	LogLevel           string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabaseDSN = "mywarranties.db"
	c.SyncInterval = 15 * time.Minute
	c.LeadTimeDays = 14
	c.MaxPushRetries = 3
	c.RetryBaseDelay = 500 * time.Millisecond
	c.RetryMaxDelay = 30 * time.Second
	c.ConflictPolicy = PolicyRemoteWins
	c.LogLevel = "info"
}

// LeadTime is LeadTimeDays as a duration.
func (c *Config) LeadTime() time.Duration {
	return time.Duration(c.LeadTimeDays) * 24 * time.Hour
}

// Validate reports settings the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerEndpointAddr == "" {
		errs = append(errs, errors.New("server endpoint address is required"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.OwnerID == "" {
		errs = append(errs, errors.New("owner id is required"))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync interval must be positive, got %s", c.SyncInterval))
	}
	if c.LeadTimeDays < 1 {
		errs = append(errs, fmt.Errorf("lead time must be at least one day, got %d", c.LeadTimeDays))
	}
	if c.MaxPushRetries < 0 {
		errs = append(errs, fmt.Errorf("max push retries must not be negative, got %d", c.MaxPushRetries))
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		errs = append(errs, fmt.Errorf("retry delays must satisfy 0 < base <= max, got %s and %s", c.RetryBaseDelay, c.RetryMaxDelay))
	}
	if c.ConflictPolicy != PolicyRemoteWins && c.ConflictPolicy != PolicySurface {
		errs = append(errs, fmt.Errorf("unknown conflict policy %q", c.ConflictPolicy))
	}
	return errors.Join(errs...)
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
