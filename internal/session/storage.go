// Package session keeps the per-client storage bucket and the authenticated
// session (token plus user profile) written into it.
//
// Every browser is identified by an opaque client ID cookie. The bucket behind
// that ID is a flat string-keyed map; the keys below are its complete layout.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket keys.
const (
	KeyAuthToken       = "auth_token"
	KeyUserData        = "user_data"
	KeyLoginUserID     = "login_user_id"
	KeyPendingUserID   = "pending_user_id"
	KeyGeneratedUserID = "generated_user_id"
)

// ErrStorageUnavailable wraps backend failures so callers can tell them apart
// from an absent session.
var ErrStorageUnavailable = errors.New("client storage unavailable")

// Storage is a set of string-keyed buckets, one per client.
type Storage interface {
	Get(ctx context.Context, client, key string) (string, bool, error)
	// SetMany writes all pairs in one step; readers never see a partial write.
	SetMany(ctx context.Context, client string, values map[string]string) error
	Delete(ctx context.Context, client string, keys ...string) error
}

const redisBucketPrefix = "portal:storage:"

// RedisStorage keeps each bucket in a Redis hash.
type RedisStorage struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStorage builds a Redis-backed Storage. A positive ttl expires idle
// buckets; zero keeps them until cleared.
func NewRedisStorage(client redis.UniversalClient, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl}
}

func (s *RedisStorage) Get(ctx context.Context, client, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, redisBucketPrefix+client, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Join(ErrStorageUnavailable, err)
	}
	return v, true, nil
}

func (s *RedisStorage) SetMany(ctx context.Context, client string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	key := redisBucketPrefix + client
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, client string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, redisBucketPrefix+client, keys...).Err(); err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

// MemoryStorage is a process-local Storage for development and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	buckets map[string]map[string]string
}

// NewMemoryStorage constructs an empty in-memory Storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{buckets: make(map[string]map[string]string)}
}

func (s *MemoryStorage) Get(_ context.Context, client, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.buckets[client][key]
	return v, ok, nil
}

func (s *MemoryStorage) SetMany(_ context.Context, client string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[client]
	if !ok {
		bucket = make(map[string]string, len(values))
		s.buckets[client] = bucket
	}
	for k, v := range values {
		bucket[k] = v
	}
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, client string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[client]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(bucket, k)
	}
	if len(bucket) == 0 {
		delete(s.buckets, client)
	}
	return nil
}
