package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKVStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewKVStore(newClient(mr))

	if _, ok, err := store.Get(ctx, "brocode:timer:team-1"); err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "brocode:timer:team-1", "42"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("brocode:timer:team-1") {
		t.Fatalf("expected redis key to be set")
	}
	v, ok, err := store.Get(ctx, "brocode:timer:team-1")
	if err != nil || !ok || v != "42" {
		t.Fatalf("expected 42, got %q ok=%v err=%v", v, ok, err)
	}

	if err := store.Del(ctx, "brocode:timer:team-1"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if mr.Exists("brocode:timer:team-1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
