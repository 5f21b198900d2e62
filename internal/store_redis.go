package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tubetalk:content:"

// RedisStore keeps one JSON value per identifier. Keys never expire.
type RedisStore struct {
	rdb *redis.Client
}

// OpenRedisStore connects to the server named by a redis:// URL
func OpenRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, withKind(ErrStorage, fmt.Errorf("invalid redis URL: %w", err))
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, withKind(ErrStorage, fmt.Errorf("redis unreachable: %w", err))
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStore wraps an existing client
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (r *RedisStore) Lookup(ctx context.Context, id ContentID) (*ContentRecord, bool, error) {
	data, err := r.rdb.Get(ctx, redisKeyPrefix+id.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, withKind(ErrStorage, fmt.Errorf("redis get %s: %w", id, err))
	}

	var record ContentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, withKind(ErrStorage, fmt.Errorf("decoding %s: %w", id, err))
	}
	return &record, true, nil
}

func (r *RedisStore) Store(ctx context.Context, record *ContentRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return withKind(ErrStorage, fmt.Errorf("encoding %s: %w", record.ID, err))
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+record.ID.Key(), data, 0).Err(); err != nil {
		return withKind(ErrStorage, fmt.Errorf("redis set %s: %w", record.ID, err))
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
