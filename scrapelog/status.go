package scrapelog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RetailerStatus is the last recorded run of one retailer.
type RetailerStatus struct {
	Source        string `json:"source"`
	LastRun       string `json:"last_run"`
	Success       bool   `json:"success"`
	BrandsCount   int    `json:"brands_count"`
	Blocked       bool   `json:"blocked"`
	Error         string `json:"error,omitempty"`
	RawCount      int    `json:"raw_count"`
	FilteredCount int    `json:"filtered_count"`
}

// StatusStore keeps the last status per source.
type StatusStore interface {
	Record(ctx context.Context, s RetailerStatus) error
	All(ctx context.Context) ([]RetailerStatus, error)
}

// MemoryStatusStore is an in-process StatusStore.
type MemoryStatusStore struct {
	mu       sync.RWMutex
	bySource map[string]RetailerStatus
}

// NewMemoryStatusStore creates an empty store.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{bySource: make(map[string]RetailerStatus)}
}

// Record overwrites the status of s.Source.
func (m *MemoryStatusStore) Record(_ context.Context, s RetailerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySource[s.Source] = s
	return nil
}

// All returns every status sorted by source.
func (m *MemoryStatusStore) All(_ context.Context) ([]RetailerStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RetailerStatus, 0, len(m.bySource))
	for _, s := range m.bySource {
		out = append(out, s)
	}
	sortStatuses(out)
	return out, nil
}

// RedisClient is the subset of the go-redis client the status store uses.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// DefaultStatusKey is the Redis hash holding one JSON field per source.
const DefaultStatusKey = "brandscrape:retailer_status"

// RedisStatusStore keeps statuses in a Redis hash so several API
// instances share one report.
type RedisStatusStore struct {
	client RedisClient
	key    string
}

// NewRedisStatusStore creates a store on client under key
// (DefaultStatusKey when empty).
func NewRedisStatusStore(client RedisClient, key string) *RedisStatusStore {
	if key == "" {
		key = DefaultStatusKey
	}
	return &RedisStatusStore{client: client, key: key}
}

// Record writes s as the field s.Source.
func (r *RedisStatusStore) Record(ctx context.Context, s RetailerStatus) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("scrapelog: marshal status: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, s.Source, string(data)).Err(); err != nil {
		return fmt.Errorf("scrapelog: redis hset: %w", err)
	}
	return nil
}

// All reads every field of the hash. Undecodable fields are skipped.
func (r *RedisStatusStore) All(ctx context.Context) ([]RetailerStatus, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("scrapelog: redis hgetall: %w", err)
	}
	out := make([]RetailerStatus, 0, len(fields))
	for _, raw := range fields {
		var s RetailerStatus
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	sortStatuses(out)
	return out, nil
}

func sortStatuses(s []RetailerStatus) {
	sort.Slice(s, func(i, j int) bool { return s[i].Source < s[j].Source })
}
