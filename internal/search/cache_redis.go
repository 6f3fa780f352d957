package search

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/jsonutil"
)

const redisCachePrefix = "katelyatv:search:"

// redisCacheEntry keeps the original write time so a replica that loads the
// entry into memory does not restart its TTL.
type redisCacheEntry struct {
	CreatedAt time.Time             `json:"createdAt"`
	Results   []domain.SearchResult `json:"results"`
}

// RedisCacheBackend stores flat search results in Redis as JSON.
type RedisCacheBackend struct {
	client redis.UniversalClient
}

func NewRedisCacheBackend(client redis.UniversalClient) *RedisCacheBackend {
	if client == nil {
		return nil
	}
	return &RedisCacheBackend{client: client}
}

// Get returns the stored results and the time they were first cached.
func (r *RedisCacheBackend) Get(ctx context.Context, key string) ([]domain.SearchResult, time.Time, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}
	var entry redisCacheEntry
	if err := jsonutil.Unmarshal(data, &entry); err != nil {
		return nil, time.Time{}, false, err
	}
	return entry.Results, entry.CreatedAt, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, results []domain.SearchResult, createdAt time.Time, ttl time.Duration) error {
	data, err := jsonutil.Marshal(redisCacheEntry{CreatedAt: createdAt, Results: results})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisCachePrefix+key).Err()
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
