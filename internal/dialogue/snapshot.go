package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// SnapshotStore persists session snapshots so a restarted process can pick
// up a call mid-conversation. Load returns ErrSessionNotFound when nothing
// is stored.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, callID string) (Snapshot, error)
	Delete(ctx context.Context, callID string) error
}

const snapshotPrefix = "dialbook:session:"

// RedisSnapshotStore keeps snapshots as JSON values with a TTL.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore creates a RedisSnapshotStore. A non-positive ttl
// stores keys without expiry.
func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) (*RedisSnapshotStore, error) {
	if client == nil {
		return nil, fmt.Errorf("dialogue: redis client is required")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSnapshotStore{client: client, ttl: ttl}, nil
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("dialogue: encode snapshot %s: %w", snap.CallID, err)
	}
	if err := s.client.Set(ctx, snapshotPrefix+snap.CallID, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("dialogue: save snapshot %s: %w", snap.CallID, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, callID string) (Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotPrefix+callID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, fmt.Errorf("dialogue: load snapshot %s: %w", callID, ErrSessionNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("dialogue: load snapshot %s: %w", callID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("dialogue: decode snapshot %s: %w", callID, err)
	}
	return snap, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, callID string) error {
	if err := s.client.Del(ctx, snapshotPrefix+callID).Err(); err != nil {
		return fmt.Errorf("dialogue: delete snapshot %s: %w", callID, err)
	}
	return nil
}

// NopSnapshotStore stores nothing.
type NopSnapshotStore struct{}

func (NopSnapshotStore) Save(context.Context, Snapshot) error { return nil }

func (NopSnapshotStore) Load(_ context.Context, callID string) (Snapshot, error) {
	return Snapshot{}, fmt.Errorf("dialogue: load snapshot %s: %w", callID, ErrSessionNotFound)
}

func (NopSnapshotStore) Delete(context.Context, string) error { return nil }

// MemorySnapshotStore keeps snapshots in a map.
type MemorySnapshotStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

// NewMemorySnapshotStore creates an empty MemorySnapshotStore.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snaps: make(map[string]Snapshot)}
}

func (m *MemorySnapshotStore) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.CallID] = snap.clone()
	return nil
}

func (m *MemorySnapshotStore) Load(_ context.Context, callID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[callID]
	if !ok {
		return Snapshot{}, fmt.Errorf("dialogue: load snapshot %s: %w", callID, ErrSessionNotFound)
	}
	return snap.clone(), nil
}

func (m *MemorySnapshotStore) Delete(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, callID)
	return nil
}
