package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestNewRedisSnapshotStore_RequiresClient(t *testing.T) {
	if _, err := NewRedisSnapshotStore(nil, time.Hour); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestRedisSnapshotStore_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store, err := NewRedisSnapshotStore(client, time.Hour)
	if err != nil {
		t.Fatalf("NewRedisSnapshotStore: %v", err)
	}
	ctx := context.Background()

	err = store.Save(ctx, Snapshot{CallID: "CA1"})
	if err == nil || !strings.Contains(err.Error(), "dialogue: save snapshot CA1") {
		t.Errorf("Save error = %v", err)
	}
	_, err = store.Load(ctx, "CA1")
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load error = %v, want a connection error", err)
	}
}

func TestMemorySnapshotStore(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	if _, err := store.Load(ctx, "CA1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load on empty store = %v, want ErrSessionNotFound", err)
	}

	snap := Snapshot{CallID: "CA1", Turns: []Turn{{Role: RoleAssistant, Text: "hi"}}}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap.Turns[0].Text = "mutated"

	got, err := store.Load(ctx, "CA1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Turns[0].Text != "hi" {
		t.Errorf("stored snapshot aliased caller slice: %q", got.Turns[0].Text)
	}

	store.Delete(ctx, "CA1")
	if _, err := store.Load(ctx, "CA1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load after Delete = %v", err)
	}
}

func TestNopSnapshotStore(t *testing.T) {
	var s SnapshotStore = NopSnapshotStore{}
	ctx := context.Background()
	if err := s.Save(ctx, Snapshot{CallID: "x"}); err != nil {
		t.Errorf("Save: %v", err)
	}
	if _, err := s.Load(ctx, "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load = %v, want ErrSessionNotFound", err)
	}
}
