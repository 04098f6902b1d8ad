package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisScanBatch = 256

// RedisStore implements KV using Redis strings under a key namespace.
// Batches are applied inside MULTI/EXEC.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore creates a new store backed by Redis.
func NewRedisStore(addr, password string, db int, namespace string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb, namespace: namespace}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Iterate(ctx context.Context, prefix string) ([]Pair, error) {
	match := globEscape(s.namespace+prefix) + "*"
	var keys []string
	iter := s.client.Scan(ctx, 0, match, redisScanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %q: %w", prefix, err)
	}
	pairs := make([]Pair, 0, len(keys))
	for i, k := range keys {
		// Deleted between SCAN and MGET.
		if vals[i] == nil {
			continue
		}
		str, ok := vals[i].(string)
		if !ok {
			return nil, fmt.Errorf("redis mget %s: unexpected type %T", k, vals[i])
		}
		pairs = append(pairs, Pair{Key: strings.TrimPrefix(k, s.namespace), Value: []byte(str)})
	}
	sortPairs(pairs)
	return pairs, nil
}

func (s *RedisStore) Apply(ctx context.Context, ops []Op) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				pipe.Del(ctx, s.namespace+op.Key)
				continue
			}
			pipe.Set(ctx, s.namespace+op.Key, op.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis apply: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

// Client exposes the underlying connection for components sharing it.
func (s *RedisStore) Client() *redis.Client { return s.client }

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
