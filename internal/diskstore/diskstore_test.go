package diskstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPutGetRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	s.Put(ctx, "archived", []byte("value-1"))

	if !s.Contains("archived") {
		t.Fatal("expected key to be indexed after Put")
	}

	got, ok := s.Get(ctx, "archived")
	if !ok || string(got) != "value-1" {
		t.Fatalf("Get = %q, %v; want value-1, true", got, ok)
	}

	s.Remove("archived")
	if s.Contains("archived") {
		t.Fatal("expected key to be gone after Remove")
	}
	if _, ok := s.Get(ctx, "archived"); ok {
		t.Fatal("expected miss after Remove")
	}
}

func TestGetMissingKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.Get(context.Background(), "nope"); ok {
		t.Fatal("expected miss for unindexed key")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s1.Put(ctx, "archived", []byte("survives-restart"))
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "index.dat")); err != nil {
		t.Fatalf("expected index.dat to exist: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := s2.Get(ctx, "archived")
	if !ok || string(got) != "survives-restart" {
		t.Fatalf("Get after restart = %q, %v; want survives-restart, true", got, ok)
	}
}

func TestShardPathIsDeterministicAndEscaped(t *testing.T) {
	unsafe := "weird/key\x00with\nnewlines"
	p1 := shardPath(unsafe)
	p2 := shardPath(unsafe)
	if p1 != p2 {
		t.Fatalf("shardPath not deterministic: %q vs %q", p1, p2)
	}
	if filepath.IsAbs(p1) {
		t.Fatalf("expected relative path, got %q", p1)
	}
	// the derived path must not contain the raw unsafe bytes as-is.
	if strings.ContainsAny(p1, "\x00\n") || strings.Count(p1, string(filepath.Separator)) != 1 {
		t.Fatalf("expected the key bytes escaped in %q", p1)
	}
	if filepath.Dir(p1) == "." {
		t.Fatalf("expected a shard subdirectory in %q", p1)
	}
}

func TestContainsDoesNotTouchFilesystem(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	s.Put(ctx, "k", []byte("v"))

	rel := s.index["k"]
	os.Remove(filepath.Join(dir, rel))

	if !s.Contains("k") {
		t.Fatal("Contains should be an index-only lookup, unaffected by file deletion")
	}
}
