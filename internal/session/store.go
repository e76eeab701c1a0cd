package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hash field names of a session record.
const (
	FieldSubjectID           = "subjectId"
	FieldDisplayName         = "displayName"
	FieldUpstreamAccessToken = "upstreamAccessToken"
)

const (
	sessionPrefix     = "session:"
	userSessionPrefix = "user-session:"
)

// ErrUnavailable marks failures of the backing store. It never means "not found".
var ErrUnavailable = errors.New("session store unavailable")

// Key returns the hash key of a session id.
func Key(id string) string { return sessionPrefix + id }

// UserKey returns the key holding the current session id of a subject.
func UserKey(subjectID string) string { return userSessionPrefix + subjectID }

// Store is a thin client over Redis.
type Store struct {
	client redis.UniversalClient
}

// NewStore wraps a go-redis client.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// GetHash returns every field of the hash at key, or an empty map when absent.
func (s *Store) GetHash(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable("hgetall", err)
	}
	return fields, nil
}

// SetHash writes fields at key and sets its TTL in one transaction.
func (s *Store) SetHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return unavailable("hset", err)
	}
	return nil
}

// SetValue stores a string with a TTL; ttl <= 0 means no expiry.
func (s *Store) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// GetValue returns the string at key and whether it exists.
func (s *Store) GetValue(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return val, true, nil
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, unavailable("del", err)
	}
	return n > 0, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
