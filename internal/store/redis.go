// internal/store/redis.go
package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds how often an optimistic UpdateHash transaction is
// replayed after losing a WATCH race before giving up.
const maxTxRetries = 16

// RedisStore implements Store on a shared Redis instance. All per-key
// atomicity guarantees come from Redis itself: single commands are atomic,
// and UpdateHash uses WATCH/MULTI for the optimistic roster writes.
type RedisStore struct {
	client *redis.Client
}

// ConnectRedis initializes a RedisStore from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis(ctx context.Context) (*RedisStore, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStore wraps an existing client, for callers that manage their own connection.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) SetHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetHash(ctx context.Context, key string) (map[string]string, bool, error) {
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if len(res) == 0 {
		// HGETALL on a missing key returns an empty map, not redis.Nil.
		return nil, false, nil
	}
	return res, true, nil
}

func (s *RedisStore) MergeHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) (bool, error) {
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err == nil, err
}

func (s *RedisStore) UpdateHash(ctx context.Context, key string, ttl time.Duration, fn func(cur map[string]string) (map[string]string, error)) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			var snapshot map[string]string
			if len(cur) > 0 {
				snapshot = cur
			}
			next, err := fn(snapshot)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				if next == nil {
					return nil
				}
				pipe.HSet(ctx, key, next)
				if ttl > 0 {
					pipe.PExpire(ctx, key, ttl)
				}
				return nil
			})
			return err
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return ErrUpdateConflict
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return res, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.PExpire(ctx, key, ttl).Err()
}

func (s *RedisStore) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, member)
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) RemoveFromSet(ctx context.Context, key, member string) error {
	return s.client.SRem(ctx, key, member).Err()
}

func (s *RedisStore) SetSize(ctx context.Context, key string) (int, error) {
	n, err := s.client.SCard(ctx, key).Result()
	return int(n), err
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) AddSorted(ctx context.Context, key, member string, score float64) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) RangeSorted(ctx context.Context, key string) ([]string, error) {
	return s.client.ZRange(ctx, key, 0, -1).Result()
}

func (s *RedisStore) RemoveSorted(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.ZRem(ctx, key, member).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) PushList(ctx context.Context, key, value string, max int, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, value)
	if max > 0 {
		pipe.LTrim(ctx, key, 0, int64(max-1))
	}
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) RangeList(ctx context.Context, key string, limit int) ([]string, error) {
	end := int64(-1)
	if limit > 0 {
		end = int64(limit - 1)
	}
	return s.client.LRange(ctx, key, 0, end).Result()
}

func (s *RedisStore) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
