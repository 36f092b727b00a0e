package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Upstream UpstreamConfig `json:"upstream"`
	Monitor  MonitorConfig  `json:"monitor"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// UpstreamConfig points at the governance read API.
type UpstreamConfig struct {
	Endpoint string `json:"endpoint"`
	// RequestTimeout is a Go duration string. Default: "15s".
	RequestTimeout string `json:"request_timeout,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
}

// MonitorConfig controls scheduling. The realm/program/chat target itself is
// NOT here: that lives in the store and is set through chat commands.
type MonitorConfig struct {
	// Interval is a Go duration string. Default: "30m".
	Interval string `json:"interval,omitempty"`
	// NotifyRatePerSec paces outgoing messages. Default: 3.
	NotifyRatePerSec int `json:"notify_rate_per_sec,omitempty"`
	// DigestSchedule is a 5-field cron spec for the daily summary,
	// e.g. "0 9 * * *". Empty disables the digest.
	DigestSchedule string `json:"digest_schedule,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./realmbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Validate rejects configs that cannot possibly run. Duration fields are
// syntax-checked here so a hot-reload can refuse a bad file before anything
// is applied.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if len(c.Telegram.OwnerUserIDs) == 0 {
		return errors.New("telegram.owner_user_ids must not be empty")
	}
	if strings.TrimSpace(c.Upstream.Endpoint) == "" {
		return errors.New("upstream.endpoint is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"upstream.request_timeout", c.Upstream.RequestTimeout},
		{"monitor.interval", c.Monitor.Interval},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Upstream.RatePerSec < 0 {
		return fmt.Errorf("upstream.rate_per_sec must be >= 0")
	}
	if c.Monitor.NotifyRatePerSec < 0 {
		return fmt.Errorf("monitor.notify_rate_per_sec must be >= 0")
	}
	return nil
}
