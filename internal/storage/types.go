package storage

import (
	"strings"
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": dependency-free file backend (json snapshot + jsonl journal)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// MonitorConfig is the persisted monitor target.
//
// Monitoring may only run when all three of RealmID, ProgramID and ChatID
// are set; the zero value is the "not configured" state.
type MonitorConfig struct {
	RealmID   string `json:"realm_id"`
	ProgramID string `json:"program_id"`
	ChatID    int64  `json:"chat_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
}

func (c MonitorConfig) Complete() bool {
	return strings.TrimSpace(c.RealmID) != "" &&
		strings.TrimSpace(c.ProgramID) != "" &&
		c.ChatID != 0
}

func (c MonitorConfig) IsZero() bool {
	return c.RealmID == "" && c.ProgramID == "" && c.ChatID == 0 && c.ThreadID == 0
}
