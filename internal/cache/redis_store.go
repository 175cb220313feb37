package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const quoteKeyPrefix = "quote:entry:"

// RedisStore keeps quote entries in redis as JSON. Keys outlive the quote
// TTL by the retention period so expired entries remain available for
// display fallback.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

var _ SnapshotStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		retention: retention,
	}
}

func quoteKey(symbol string) string {
	return fmt.Sprintf("%s%s", quoteKeyPrefix, symbol)
}

func (s *RedisStore) Load(ctx context.Context, symbol string) (Entry, bool, error) {
	data, err := s.client.Get(ctx, quoteKey(symbol)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("load quote %s: %w", symbol, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode quote %s: %w", symbol, err)
	}

	return entry, true, nil
}

func (s *RedisStore) Save(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, quoteKey(entry.Symbol), data, s.retention).Err(); err != nil {
		return fmt.Errorf("save quote %s: %w", entry.Symbol, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, symbol string) error {
	return s.client.Del(ctx, quoteKey(symbol)).Err()
}

// Symbols lists every symbol with a stored entry.
func (s *RedisStore) Symbols(ctx context.Context) ([]string, error) {
	var symbols []string

	iter := s.client.Scan(ctx, 0, quoteKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		symbols = append(symbols, iter.Val()[len(quoteKeyPrefix):])
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return symbols, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
