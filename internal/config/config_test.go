package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRequiresBindAndUpstream(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"missing bind", Config{Upstreams: []string{"a:1"}}, false},
		{"missing upstreams", Config{Bind: "127.0.0.1:8080"}, false},
		{"valid", Config{Bind: "127.0.0.1:8080", Upstreams: []string{"a:1"}}, true},
	}
	for _, c := range cases {
		err := c.cfg.Validate()
		if (err == nil) != c.ok {
			t.Errorf("%s: Validate() error = %v, want ok=%v", c.name, err, c.ok)
		}
	}
}

func TestValidateDefaultsHealthCheckPath(t *testing.T) {
	cfg := Config{Bind: "127.0.0.1:8080", Upstreams: []string{"a:1"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ActiveHealthCheckPath != "/" {
		t.Fatalf("expected default health check path \"/\", got %q", cfg.ActiveHealthCheckPath)
	}
}

func TestHealthChecksAndRateLimitEnabled(t *testing.T) {
	cfg := Config{}
	if cfg.HealthChecksEnabled() || cfg.RateLimitEnabled() {
		t.Fatal("expected both disabled by default")
	}
	cfg.ActiveHealthCheckInterval = 5
	cfg.MaxRequestsPerMinute = 10
	if !cfg.HealthChecksEnabled() || !cfg.RateLimitEnabled() {
		t.Fatal("expected both enabled once their fields are set")
	}
}

func TestMergeFlagsWinOverFile(t *testing.T) {
	file := &Config{
		Bind:                  "127.0.0.1:1111",
		Upstreams:             []string{"file-upstream:1"},
		MaxRequestsPerMinute:  10,
		ActiveHealthCheckPath: "/file-health",
		LogRollMB:             50,
	}
	flags := &Config{
		Bind:                  "127.0.0.1:2222", // set on the command line, should win
		ActiveHealthCheckPath: "/", // flag default, but NOT explicitly passed
		LogRollMB:             100, // flag default, but NOT explicitly passed
	}
	changed := map[string]bool{"bind": true}
	file.Merge(flags, func(name string) bool { return changed[name] })

	if file.Bind != "127.0.0.1:2222" {
		t.Fatalf("expected flag bind to win, got %q", file.Bind)
	}
	if len(file.Upstreams) != 1 || file.Upstreams[0] != "file-upstream:1" {
		t.Fatalf("expected file upstreams to survive when flags didn't set any, got %v", file.Upstreams)
	}
	if file.MaxRequestsPerMinute != 10 {
		t.Fatalf("expected file's rate limit to survive, got %d", file.MaxRequestsPerMinute)
	}
	if file.ActiveHealthCheckPath != "/file-health" {
		t.Fatalf("expected file's health check path to survive an unset flag at its default, got %q", file.ActiveHealthCheckPath)
	}
	if file.LogRollMB != 50 {
		t.Fatalf("expected file's log roll size to survive an unset flag at its default, got %d", file.LogRollMB)
	}
}

func TestMergeOnlyAppliesExplicitlyChangedFlags(t *testing.T) {
	file := &Config{ActiveHealthCheckPath: "/file-health", LogRollMB: 50}
	flags := &Config{ActiveHealthCheckPath: "/flag-health", LogRollMB: 200}
	changed := map[string]bool{"active-health-check-path": true, "log-roll-mb": true}
	file.Merge(flags, func(name string) bool { return changed[name] })

	if file.ActiveHealthCheckPath != "/flag-health" {
		t.Fatalf("expected explicitly-changed flag to win, got %q", file.ActiveHealthCheckPath)
	}
	if file.LogRollMB != 200 {
		t.Fatalf("expected explicitly-changed flag to win, got %d", file.LogRollMB)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "balancebeam.toml")
	contents := `
bind = "127.0.0.1:9000"
upstreams = ["10.0.0.1:80", "10.0.0.2:80"]
max_requests_per_minute = 42
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Bind)
	require.Len(t, cfg.Upstreams, 2)
	require.EqualValues(t, 42, cfg.MaxRequestsPerMinute)
}
