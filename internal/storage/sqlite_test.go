package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "realmbot/pkg/logx"
)

func TestSQLiteStoreContract(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	cfg, err := st.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.IsZero() {
		t.Fatalf("expected zero config, got %+v", cfg)
	}

	want := MonitorConfig{RealmID: "realm-1", ProgramID: "prog-1", ChatID: -100123, ThreadID: 5}
	if err := st.SaveConfig(ctx, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if err := st.MarkKnown(ctx, "prop-a"); err != nil {
		t.Fatalf("MarkKnown: %v", err)
	}
	if err := st.MarkKnown(ctx, "prop-a"); err != nil {
		t.Fatalf("MarkKnown repeat: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: migrations are idempotent, state survives.
	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, err := st.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("LoadConfig after reopen: %v", err)
	}
	if got != want {
		t.Fatalf("config = %+v, want %+v", got, want)
	}
	known, err := st.IsKnown(ctx, "prop-a")
	if err != nil || !known {
		t.Fatalf("IsKnown = (%v, %v), want (true, nil)", known, err)
	}
	if n, _ := st.KnownCount(ctx); n != 1 {
		t.Fatalf("KnownCount = %d, want 1", n)
	}

	if err := st.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if cfg, _ := st.LoadConfig(ctx); !cfg.IsZero() {
		t.Fatalf("expected empty config after reset, got %+v", cfg)
	}
	if known, _ := st.IsKnown(ctx, "prop-a"); known {
		t.Fatal("expected prop-a new again after reset")
	}
}
