package storage

import (
	"context"
	"errors"
	"strings"

	logx "realmbot/pkg/logx"
)

// Store is the durable state owned by the monitor: the target configuration
// and the set of proposal ids that have already been notified.
//
// Contract notes:
//   - LoadConfig returns the zero MonitorConfig when nothing is persisted.
//   - An id must be marked known only AFTER its notification was dispatched;
//     the store itself doesn't enforce this, the pipeline does.
//   - ResetAll clears both records.
type Store interface {
	LoadConfig(ctx context.Context) (MonitorConfig, error)
	SaveConfig(ctx context.Context, cfg MonitorConfig) error

	IsKnown(ctx context.Context, id string) (bool, error)
	MarkKnown(ctx context.Context, id string) error
	KnownCount(ctx context.Context) (int, error)

	ResetAll(ctx context.Context) error
	Close() error
}

// Open initializes the configured store. The driver defaults to sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
