package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "realmbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.config.json        (monitor configuration)
//   - <prefix>.seen.snapshot.json (periodic snapshot of the seen-set)
//   - <prefix>.seen.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot. The seen-set is
// monotonic: ids are never removed except by ResetAll.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	configPath string

	seenSnapshotPath string
	seenJournalFile  *os.File
	seen             map[string]int64 // id -> first-seen unix milli

	seenWrites int
}

type seenRecord struct {
	ID string `json:"id"`
	At int64  `json:"at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	configPath := prefix + ".config.json"
	snapPath := prefix + ".seen.snapshot.json"
	journalPath := prefix + ".seen.journal.jsonl"

	// Load seen-set from snapshot + journal.
	seen := map[string]int64{}
	_ = loadSeenSnapshot(snapPath, seen)
	_ = replaySeenJournal(journalPath, seen)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:              log,
		configPath:       configPath,
		seenSnapshotPath: snapPath,
		seenJournalFile:  jf,
		seen:             seen,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenJournalFile != nil {
		err := s.seenJournalFile.Close()
		s.seenJournalFile = nil
		return err
	}
	return nil
}

func (s *fileStore) LoadConfig(ctx context.Context) (MonitorConfig, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return MonitorConfig{}, nil
	}
	if err != nil {
		return MonitorConfig{}, err
	}
	var cfg MonitorConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return MonitorConfig{}, err
	}
	return cfg, nil
}

func (s *fileStore) SaveConfig(ctx context.Context, cfg MonitorConfig) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.configPath, cfg)
}

func (s *fileStore) IsKnown(ctx context.Context, id string) (bool, error) {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok, nil
}

func (s *fileStore) MarkKnown(ctx context.Context, id string) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenJournalFile == nil {
		return errors.New("seen journal closed")
	}
	if _, ok := s.seen[id]; ok {
		return nil
	}
	at := time.Now().UnixMilli()

	// Journal first: if the append fails, the id must not look persisted.
	enc := json.NewEncoder(s.seenJournalFile)
	if err := enc.Encode(seenRecord{ID: id, At: at}); err != nil {
		return err
	}
	s.seen[id] = at

	s.seenWrites++
	if s.seenWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("seen-set compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) KnownCount(ctx context.Context) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen), nil
}

func (s *fileStore) ResetAll(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Remove(s.seenSnapshotPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.seen = map[string]int64{}
	s.seenWrites = 0
	if s.seenJournalFile != nil {
		if err := s.seenJournalFile.Truncate(0); err != nil {
			return err
		}
		if _, err := s.seenJournalFile.Seek(0, 2); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	if s.seen == nil {
		return nil
	}
	if err := writeJSONAtomic(s.seenSnapshotPath, s.seen); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.seenJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.seenJournalFile.Seek(0, 2)
	return err
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadSeenSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replaySeenJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r seenRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.ID == "" {
			continue
		}
		out[r.ID] = r.At
	}
	return sc.Err()
}
