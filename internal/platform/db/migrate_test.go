package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMigrations_SortsAndFilters(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"002_chat.sql":  "CREATE TABLE message (id uuid);",
		"001_core.sql":  "CREATE TABLE app_user (id uuid);",
		"notes.txt":     "not a migration",
		"README.sql":    "no numeric prefix",
		"010_later.sql": "CREATE TABLE activity_log (id uuid);",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].SQL == "" {
		t.Error("expected migration SQL to be loaded")
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := m.LoadMigrations(); err == nil {
		t.Fatal("expected error for missing migrations directory")
	}
}

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Fatal("expected nil tx for empty context")
	}
}

func TestPassthroughRunner(t *testing.T) {
	called := false
	err := PassthroughRunner{}.WithTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}
