package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// PresenceStore is the redis fast path for "is this user online right now".
// The durable PresenceRecord lives in mongo; this key only carries the TTL.
//
// key: im:presence:<user>, value: last-online unix millis.
type PresenceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresenceStore(rdb *redis.Client, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &PresenceStore{rdb: rdb, ttl: ttl}
}

func presenceKey(user string) string { return "im:presence:" + user }

// Online marks the user online and renews the TTL.
func (s *PresenceStore) Online(ctx context.Context, user string, at time.Time) error {
	return s.rdb.Set(ctx, presenceKey(user), strconv.FormatInt(at.UnixMilli(), 10), s.ttl).Err()
}

// Offline removes the key. Idempotent.
func (s *PresenceStore) Offline(ctx context.Context, user string) error {
	return s.rdb.Del(ctx, presenceKey(user)).Err()
}

func (s *PresenceStore) IsOnline(ctx context.Context, user string) (bool, error) {
	_, err := s.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Heartbeat renews the TTL without changing the stored timestamp semantics.
func (s *PresenceStore) Heartbeat(ctx context.Context, user string) error {
	return s.rdb.Expire(ctx, presenceKey(user), s.ttl).Err()
}
