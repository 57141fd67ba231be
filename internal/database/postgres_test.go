package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "010_cards.sql", "002_decks.sql", "001_initial.sql", "README.md", "notes.sql", "abc_x.sql")
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ListMigrations(dir)
	if err != nil {
		t.Fatalf("ListMigrations: %v", err)
	}
	want := []int{1, 2, 10}
	if len(got) != len(want) {
		t.Fatalf("got %d migrations, want %d: %+v", len(got), len(want), got)
	}
	for i, v := range want {
		if got[i].Version != v {
			t.Fatalf("migration %d version = %d, want %d", i, got[i].Version, v)
		}
	}
	if got[0].Path != filepath.Join(dir, "001_initial.sql") {
		t.Fatalf("unexpected path %q", got[0].Path)
	}
}

func TestListMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "001_a.sql", "1_b.sql")

	_, err := ListMigrations(dir)
	if err == nil || !strings.Contains(err.Error(), "version 1") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestListMigrations_MissingDir(t *testing.T) {
	if _, err := ListMigrations(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := Pending(all, map[int]bool{1: true, 3: true})
	if len(got) != 1 || got[0].Version != 2 {
		t.Fatalf("Pending = %+v, want only version 2", got)
	}
	if got := Pending(all, nil); len(got) != 3 {
		t.Fatalf("Pending with nothing applied = %d, want 3", len(got))
	}
}

func TestQueuePoolSize(t *testing.T) {
	if got := queuePoolSize(5); got != 15 {
		t.Fatalf("queuePoolSize(5) = %d", got)
	}
	if got := queuePoolSize(-1); got != 10 {
		t.Fatalf("queuePoolSize(-1) = %d", got)
	}
}
