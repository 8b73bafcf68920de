// Package config holds the proxy's immutable startup configuration
// and the two ways of constructing it: CLI flags, or an optional TOML
// file with flags layered on top.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the proxy's immutable, process-lifetime startup
// configuration (spec.md's ProxyConfig).
type Config struct {
	Bind      string   `toml:"bind"`
	Upstreams []string `toml:"upstreams"`

	// ActiveHealthCheckInterval is 0 when active health checks are
	// disabled (the config omitted the flag/field entirely).
	ActiveHealthCheckInterval int `toml:"active_health_check_interval_seconds"`
	ActiveHealthCheckPath     string `toml:"active_health_check_path"`

	// MaxRequestsPerMinute is 0 when the rate limiter is disabled.
	MaxRequestsPerMinute int64 `toml:"max_requests_per_minute"`

	// LogFile, when non-empty, enables a rolling file log sink
	// alongside stderr.
	LogFile    string `toml:"log_file"`
	LogRollMB  int    `toml:"log_roll_mb"`

	// AdminBind, when non-empty, enables the admin/metrics server
	// (internal/admin) on this address.
	AdminBind string `toml:"admin_bind"`
}

// fileConfig is the shape accepted from an optional TOML config file,
// identical to Config's toml-tagged fields.
type fileConfig = Config

// LoadFile parses a TOML config file at path.
func LoadFile(path string) (*Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &fc, nil
}

// flagNames maps each Config field merged from the CLI to the pflag
// name that sets it, so Merge can tell "explicitly passed on the
// command line" apart from "left at its flag default".
var flagNames = struct {
	Bind, Upstreams, ActiveHealthCheckInterval, ActiveHealthCheckPath,
	MaxRequestsPerMinute, LogFile, LogRollMB, AdminBind string
}{
	Bind:                      "bind",
	Upstreams:                 "upstream",
	ActiveHealthCheckInterval: "active-health-check-interval",
	ActiveHealthCheckPath:     "active-health-check-path",
	MaxRequestsPerMinute:      "max-requests-per-minute",
	LogFile:                   "log-file",
	LogRollMB:                 "log-roll-mb",
	AdminBind:                 "admin-bind",
}

// Merge layers override on top of c, field by field, using changed to
// decide whether a field was explicitly set on the command line.
// changed is typically *pflag.FlagSet.Changed; some flags (e.g.
// --active-health-check-path, --log-roll-mb) have non-zero defaults,
// so comparing against the zero value would wrongly treat "left at
// its default" as "explicitly set" and clobber the file config with
// it. It implements the "flags win over file, but only when the user
// actually passed them" precedence rule.
func (c *Config) Merge(override *Config, changed func(name string) bool) {
	if override == nil {
		return
	}
	if changed(flagNames.Bind) {
		c.Bind = override.Bind
	}
	if changed(flagNames.Upstreams) {
		c.Upstreams = override.Upstreams
	}
	if changed(flagNames.ActiveHealthCheckInterval) {
		c.ActiveHealthCheckInterval = override.ActiveHealthCheckInterval
	}
	if changed(flagNames.ActiveHealthCheckPath) {
		c.ActiveHealthCheckPath = override.ActiveHealthCheckPath
	}
	if changed(flagNames.MaxRequestsPerMinute) {
		c.MaxRequestsPerMinute = override.MaxRequestsPerMinute
	}
	if changed(flagNames.LogFile) {
		c.LogFile = override.LogFile
	}
	if changed(flagNames.LogRollMB) {
		c.LogRollMB = override.LogRollMB
	}
	if changed(flagNames.AdminBind) {
		c.AdminBind = override.AdminBind
	}
}

// Validate enforces section 6's "all optional except --bind and at
// least one --upstream" rule.
func (c *Config) Validate() error {
	if c.Bind == "" {
		return fmt.Errorf("config: bind address is required")
	}
	if len(c.Upstreams) == 0 {
		return fmt.Errorf("config: at least one upstream is required")
	}
	if c.ActiveHealthCheckPath == "" {
		c.ActiveHealthCheckPath = "/"
	}
	return nil
}

// HealthChecksEnabled reports whether active health checks should
// run.
func (c *Config) HealthChecksEnabled() bool { return c.ActiveHealthCheckInterval > 0 }

// RateLimitEnabled reports whether the fixed-window limiter should
// run.
func (c *Config) RateLimitEnabled() bool { return c.MaxRequestsPerMinute > 0 }
