package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [7]
  poll_timeout: "10s"
logging:
  level: "info"
  console: true
  file:
    enabled: false
    path: ""
upstream:
  endpoint: "https://indexer.example.org"
  request_timeout: "15s"
  rate_per_sec: 5
monitor:
  interval: "30m"
  digest_schedule: "0 9 * * *"
storage:
  driver: "sqlite"
  path: "./realmbot.db"
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Upstream.Endpoint != "https://indexer.example.org" {
		t.Fatalf("decoded config: %+v", cfg)
	}
	if cfg.Monitor.Interval != "30m" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("decoded config: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.yaml", validYAML+"\nbogus_section:\n  x: 1\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown top-level key must be rejected")
	}
}

func TestValidateCatchesBadDurations(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t", OwnerUserIDs: []int64{1}},
		Upstream: UpstreamConfig{Endpoint: "http://x"},
		Storage:  StorageConfig{Path: "p"},
		Monitor:  MonitorConfig{Interval: "half an hour"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("bad duration must fail validation")
	}
	cfg.Monitor.Interval = "45m"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRequiresCoreFields(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"no owners", func(c *Config) { c.Telegram.OwnerUserIDs = nil }},
		{"missing endpoint", func(c *Config) { c.Upstream.Endpoint = "" }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{
				Telegram: TelegramConfig{Token: "t", OwnerUserIDs: []int64{1}},
				Upstream: UpstreamConfig{Endpoint: "http://x"},
				Storage:  StorageConfig{Path: "p"},
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Upstream: UpstreamConfig{Endpoint: "http://a"}}
	newCfg := &Config{
		Upstream: UpstreamConfig{Endpoint: "http://b"},
		Monitor:  MonitorConfig{Interval: "10m"},
	}
	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	if len(changed) != 2 || changed[0] != "monitor" || changed[1] != "upstream" {
		t.Fatalf("changed = %v", changed)
	}
}
