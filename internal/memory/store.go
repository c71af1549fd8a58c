package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store persists the index's three structures: article entries, topic
// buckets and per-article connection sets.
type Store interface {
	UpsertEntry(ctx context.Context, entry Entry) error
	Entry(ctx context.Context, url string) (Entry, bool, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Count(ctx context.Context) (int, error)
	AppendTopic(ctx context.Context, topic, url string) error
	TopicURLs(ctx context.Context, topic string) ([]string, error)
	SetConnections(ctx context.Context, key string, conns []Connection) error
	Connections(ctx context.Context, key string) ([]Connection, error)
}

// MemoryStore is the default in-process store. Topic buckets are append-only
// and keep discovery order; a URL enters a bucket at most once.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string]Entry
	topics      map[string][]string
	connections map[string][]Connection
}

// NewMemoryStore creates an in-memory index store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]Entry),
		topics:      make(map[string][]string),
		connections: make(map[string][]Connection),
	}
}

func (s *MemoryStore) UpsertEntry(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.URL] = entry
	return nil
}

func (s *MemoryStore) Entry(_ context.Context, url string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[url]
	return entry, ok, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AnalyzedAt.After(entries[j].AnalyzedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) AppendTopic(_ context.Context, topic, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.topics[topic] {
		if existing == url {
			return nil
		}
	}
	s.topics[topic] = append(s.topics[topic], url)
	return nil
}

func (s *MemoryStore) TopicURLs(_ context.Context, topic string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.topics[topic]...), nil
}

func (s *MemoryStore) SetConnections(_ context.Context, key string, conns []Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[key] = append([]Connection(nil), conns...)
	return nil
}

func (s *MemoryStore) Connections(_ context.Context, key string) ([]Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Connection(nil), s.connections[key]...), nil
}

const (
	articleHashKey     = "memory:articles"
	articleTimeKey     = "memory:articles:by_time"
	topicKeyPrefix     = "memory:topic:"
	connectionsKeyPref = "memory:connections:"
)

// RedisStore keeps the article memory in Redis. Entries live in a hash keyed
// by URL with a companion sorted set ordered by analyzed_at for the recency
// scan; topic buckets are lists and connection sets plain JSON values.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed index store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) UpsertEntry(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, articleHashKey, entry.URL, data)
	pipe.ZAdd(ctx, articleTimeKey, redis.Z{
		Score:  float64(entry.AnalyzedAt.UnixNano()),
		Member: entry.URL,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Entry(ctx context.Context, url string) (Entry, bool, error) {
	val, err := s.client.HGet(ctx, articleHashKey, url).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("load entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal entry: %w", err)
	}
	return entry, true, nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	urls, err := s.client.ZRevRange(ctx, articleTimeKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("recent scan: %w", err)
	}
	if len(urls) == 0 {
		return []Entry{}, nil
	}
	values, err := s.client.HMGet(ctx, articleHashKey, urls...).Result()
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	entries := make([]Entry, 0, len(values))
	for _, val := range values {
		raw, ok := val.(string)
		if !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, articleTimeKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) AppendTopic(ctx context.Context, topic, url string) error {
	key := topicKeyPrefix + topic
	pos, err := s.client.LPos(ctx, key, url, redis.LPosArgs{}).Result()
	if err == nil && pos >= 0 {
		return nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("topic lookup: %w", err)
	}
	if err := s.client.RPush(ctx, key, url).Err(); err != nil {
		return fmt.Errorf("topic append: %w", err)
	}
	return nil
}

func (s *RedisStore) TopicURLs(ctx context.Context, topic string) ([]string, error) {
	urls, err := s.client.LRange(ctx, topicKeyPrefix+topic, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("topic bucket: %w", err)
	}
	return urls, nil
}

func (s *RedisStore) SetConnections(ctx context.Context, key string, conns []Connection) error {
	data, err := json.Marshal(conns)
	if err != nil {
		return fmt.Errorf("marshal connections: %w", err)
	}
	if err := s.client.Set(ctx, connectionsKeyPref+key, data, 0).Err(); err != nil {
		return fmt.Errorf("store connections: %w", err)
	}
	return nil
}

func (s *RedisStore) Connections(ctx context.Context, key string) ([]Connection, error) {
	val, err := s.client.Get(ctx, connectionsKeyPref+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Connection{}, nil
		}
		return nil, fmt.Errorf("load connections: %w", err)
	}
	var conns []Connection
	if err := json.Unmarshal([]byte(val), &conns); err != nil {
		return nil, fmt.Errorf("unmarshal connections: %w", err)
	}
	return conns, nil
}
