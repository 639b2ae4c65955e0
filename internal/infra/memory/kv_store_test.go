package memory

import (
	"context"
	"testing"
)

func TestKVStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore()

	if _, ok, _ := store.Get(ctx, "brocode:timer:default"); ok {
		t.Fatalf("expected key absent before set")
	}

	if err := store.Set(ctx, "brocode:timer:default", "10799"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := store.Get(ctx, "brocode:timer:default")
	if err != nil || !ok {
		t.Fatalf("expected key present, ok=%v err=%v", ok, err)
	}
	if v != "10799" {
		t.Fatalf("expected 10799, got %s", v)
	}

	if err := store.Del(ctx, "brocode:timer:default"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "brocode:timer:default"); ok {
		t.Fatalf("expected key removed")
	}
}
