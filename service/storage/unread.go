package storage

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// UnreadMirror keeps a redis copy of the per-(user, conversation) unread
// counter for O(1) reads. The authoritative counter is the $inc'd field on
// the conversation summary document; this mirror is backfilled lazily and
// may be missing, never trusted over the document.
//
// key: im:unread:<user>:<conversation>
type UnreadMirror struct {
	rdb *redis.Client
}

func NewUnreadMirror(rdb *redis.Client) *UnreadMirror {
	return &UnreadMirror{rdb: rdb}
}

func unreadKey(user, conv string) string {
	return fmt.Sprintf("im:unread:%s:%s", user, conv)
}

// Incr atomically bumps the counter. INCR is the fetch-and-increment
// primitive; two concurrent sends can never observe the same pre-increment
// value.
func (s *UnreadMirror) Incr(ctx context.Context, user, conv string) (int64, error) {
	return s.rdb.Incr(ctx, unreadKey(user, conv)).Result()
}

// Reset forces the counter to zero. Used by mark-read and for the sender's
// own summary row.
func (s *UnreadMirror) Reset(ctx context.Context, user, conv string) error {
	return s.rdb.Set(ctx, unreadKey(user, conv), 0, 0).Err()
}

// Get returns the mirrored count. ok=false means the mirror has no entry
// and the caller must read the authoritative store.
func (s *UnreadMirror) Get(ctx context.Context, user, conv string) (n int64, ok bool, err error) {
	n, err = s.rdb.Get(ctx, unreadKey(user, conv)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Set backfills the mirror from the authoritative count.
func (s *UnreadMirror) Set(ctx context.Context, user, conv string, n int64) error {
	return s.rdb.Set(ctx, unreadKey(user, conv), n, 0).Err()
}

// Drop removes the mirror entry, e.g. when the user leaves the conversation.
func (s *UnreadMirror) Drop(ctx context.Context, user, conv string) error {
	return s.rdb.Del(ctx, unreadKey(user, conv)).Err()
}
