package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "realmbot/pkg/logx"
)

func openTestFileStore(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestFileStoreConfigRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store")

	st := openTestFileStore(t, path)

	cfg, err := st.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.IsZero() {
		t.Fatalf("expected zero config on fresh store, got %+v", cfg)
	}

	want := MonitorConfig{RealmID: "realm-1", ProgramID: "prog-1", ChatID: 42}
	if err := st.SaveConfig(ctx, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Survives reopen.
	st = openTestFileStore(t, path)
	defer st.Close()
	got, err := st.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("LoadConfig after reopen: %v", err)
	}
	if got != want {
		t.Fatalf("config = %+v, want %+v", got, want)
	}
	if !got.Complete() {
		t.Fatal("expected complete config")
	}
}

func TestFileStoreSeenSetPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store")

	st := openTestFileStore(t, path)

	known, err := st.IsKnown(ctx, "p1")
	if err != nil || known {
		t.Fatalf("IsKnown fresh = (%v, %v), want (false, nil)", known, err)
	}
	if err := st.MarkKnown(ctx, "p1"); err != nil {
		t.Fatalf("MarkKnown: %v", err)
	}
	if err := st.MarkKnown(ctx, "p2"); err != nil {
		t.Fatalf("MarkKnown: %v", err)
	}
	// Marking twice is a no-op.
	if err := st.MarkKnown(ctx, "p1"); err != nil {
		t.Fatalf("MarkKnown repeat: %v", err)
	}
	if n, _ := st.KnownCount(ctx); n != 2 {
		t.Fatalf("KnownCount = %d, want 2", n)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st = openTestFileStore(t, path)
	defer st.Close()
	for _, id := range []string{"p1", "p2"} {
		known, err := st.IsKnown(ctx, id)
		if err != nil {
			t.Fatalf("IsKnown(%s): %v", id, err)
		}
		if !known {
			t.Fatalf("expected %s known after reopen", id)
		}
	}
}

func TestFileStoreResetAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store")

	st := openTestFileStore(t, path)
	defer st.Close()

	if err := st.SaveConfig(ctx, MonitorConfig{RealmID: "r", ProgramID: "p", ChatID: 7}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if err := st.MarkKnown(ctx, "p1"); err != nil {
		t.Fatalf("MarkKnown: %v", err)
	}

	if err := st.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}

	cfg, err := st.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("LoadConfig after reset: %v", err)
	}
	if !cfg.IsZero() {
		t.Fatalf("expected empty config after reset, got %+v", cfg)
	}
	known, err := st.IsKnown(ctx, "p1")
	if err != nil {
		t.Fatalf("IsKnown after reset: %v", err)
	}
	if known {
		t.Fatal("expected p1 to be new again after reset")
	}
	if n, _ := st.KnownCount(ctx); n != 0 {
		t.Fatalf("KnownCount after reset = %d, want 0", n)
	}
}

func TestFileStoreResetRestartsCompactionCadence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestFileStore(t, filepath.Join(t.TempDir(), "store"))
	defer st.Close()

	fs := st.(*fileStore)
	for _, id := range []string{"p1", "p2", "p3"} {
		if err := st.MarkKnown(ctx, id); err != nil {
			t.Fatalf("MarkKnown(%s): %v", id, err)
		}
	}
	if fs.seenWrites != 3 {
		t.Fatalf("seenWrites = %d, want 3", fs.seenWrites)
	}

	if err := st.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	// The write counter tracks the journal; a truncated journal starts over.
	if fs.seenWrites != 0 {
		t.Fatalf("seenWrites after reset = %d, want 0", fs.seenWrites)
	}
}

func TestFileStoreEmptyIDIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestFileStore(t, filepath.Join(t.TempDir(), "store"))
	defer st.Close()

	if err := st.MarkKnown(ctx, "  "); err != nil {
		t.Fatalf("MarkKnown blank: %v", err)
	}
	if n, _ := st.KnownCount(ctx); n != 0 {
		t.Fatalf("KnownCount = %d, want 0", n)
	}
}
