package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scriptcast/internal/script"
)

const (
	scriptKeyPrefix = "scriptcast:script:"
	scriptIndexKey  = "scriptcast:scripts"

	redisDialTimeout = 5 * time.Second
)

// RedisStore persists scripts in Redis so generated scripts survive process
// restarts. Each script is a JSON value under scriptKeyPrefix+id, and
// scriptIndexKey is a set of known IDs for listing.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance at addr and verifies the
// connection with a ping before returning.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: redisDialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, id string) (*script.Script, bool, error) {
	raw, err := s.client.Get(ctx, scriptKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get script %s: %w", id, err)
	}

	var sc script.Script
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, false, fmt.Errorf("unmarshal script %s: %w", id, err)
	}
	return &sc, true, nil
}

// Set implements Store.Set.
func (s *RedisStore) Set(ctx context.Context, sc *script.Script) error {
	raw, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal script %s: %w", sc.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, scriptKeyPrefix+sc.ID, raw, 0)
	pipe.SAdd(ctx, scriptIndexKey, sc.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set script %s: %w", sc.ID, err)
	}
	return nil
}

// Delete implements Store.Delete.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, scriptKeyPrefix+id)
	pipe.SRem(ctx, scriptIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete script %s: %w", id, err)
	}
	return nil
}

// List implements Store.List. IDs whose value has expired or been removed
// out-of-band are skipped.
func (s *RedisStore) List(ctx context.Context) ([]*script.Script, error) {
	ids, err := s.client.SMembers(ctx, scriptIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list scripts: %w", err)
	}

	out := make([]*script.Script, 0, len(ids))
	for _, id := range ids {
		sc, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
