package db

import (
	"context"
	"testing"

	"blinkdb/internal/diskstore"
)

func newTestDB(t *testing.T, hot, warm int) *DB {
	t.Helper()
	disk, err := diskstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("diskstore.Open: %v", err)
	}
	return New(hot, warm, 3, disk)
}

func contains(keys []string, want string) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t, 2, 2)

	d.Set(ctx, "k", []byte("v"))
	if v, ok := d.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("Get(k) = %q, %v; want v, true", v, ok)
	}
}

func TestSetOverwriteThenGet(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t, 2, 2)

	d.Set(ctx, "k", []byte("v1"))
	d.Set(ctx, "k", []byte("v2"))
	if v, ok := d.Get(ctx, "k"); !ok || string(v) != "v2" {
		t.Fatalf("Get(k) = %q, %v; want v2, true", v, ok)
	}
}

func TestSetDeleteThenGetIsMiss(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t, 2, 2)

	d.Set(ctx, "k", []byte("v"))
	d.Del("k")
	if _, ok := d.Get(ctx, "k"); ok {
		t.Fatal("expected miss after Del")
	}
}

func TestDelIsTotal(t *testing.T) {
	d := newTestDB(t, 2, 2)
	d.Set(context.Background(), "k", []byte("v"))

	if !d.Del("k") {
		t.Fatal("first Del should report true")
	}
	if d.Del("k") {
		t.Fatal("second Del should report false")
	}
}

func TestGetPromotesFromDiskAndRemovesDiskCopy(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t, 2, 2)

	d.Set(ctx, "a", []byte("1"))
	d.Set(ctx, "b", []byte("2"))
	d.Set(ctx, "c", []byte("3"))
	d.Set(ctx, "d", []byte("4"))
	d.Set(ctx, "e", []byte("5")) // per spec scenario: Hot={e,d} Warm={c,b} Disk={a}

	if !d.disk.Contains("a") {
		t.Fatal("expected a spilled to disk")
	}

	value, ok := d.Get(ctx, "a")
	if !ok || string(value) != "1" {
		t.Fatalf("Get(a) = %q, %v; want 1, true", value, ok)
	}
	if d.disk.Contains("a") {
		t.Fatal("expected a removed from disk after promotion into Hot")
	}
	if !contains(d.cache.HotKeys(), "a") {
		t.Fatal("expected a promoted into Hot")
	}
}

func TestSetRemovesPriorDiskCopy(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t, 2, 2)

	d.Set(ctx, "a", []byte("1"))
	d.Set(ctx, "b", []byte("2"))
	d.Set(ctx, "c", []byte("3"))
	d.Set(ctx, "x", []byte("x1"))
	d.Set(ctx, "y", []byte("y1")) // forces a onto disk (Hot=2,Warm=2)
	if !d.disk.Contains("a") {
		t.Fatal("expected a spilled to disk")
	}

	d.Set(ctx, "a", []byte("new-value"))
	if d.disk.Contains("a") {
		t.Fatal("expected disk copy of a removed once SET rewrites it in cache")
	}
	value, ok := d.Get(ctx, "a")
	if !ok || string(value) != "new-value" {
		t.Fatalf("Get(a) = %q, %v; want new-value, true", value, ok)
	}
}
