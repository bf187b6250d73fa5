package presence

import (
	"context"
	"time"

	"teamchat/logger"
	"teamchat/module/messaging/model"

	"go.uber.org/zap"
)

// StatusStore is the durable side of presence. *Store implements it on
// mongo; tests use an in-memory fake.
type StatusStore interface {
	SetStatus(ctx context.Context, userID string, online bool, at time.Time) (changed bool, err error)
	MarkOfflineIfStale(ctx context.Context, userID string, cutoff, at time.Time) (bool, error)
	Get(ctx context.Context, userID string) (model.PresenceRecord, error)
	ListStaleOnline(ctx context.Context, cutoff time.Time) ([]model.PresenceRecord, error)
}

// FastPath is the redis TTL key serving the hot "is online" read.
// storage.PresenceStore implements it. May be nil.
type FastPath interface {
	Online(ctx context.Context, user string, at time.Time) error
	Offline(ctx context.Context, user string) error
	IsOnline(ctx context.Context, user string) (bool, error)
	Heartbeat(ctx context.Context, user string) error
}

// Tracker owns user presence. The mongo record is authoritative; the redis
// key is a TTL-expiring projection. Every transition reports whether the
// online flag actually flipped so callers broadcast each state change
// exactly once.
type Tracker struct {
	store StatusStore
	fast  FastPath
	clock func() time.Time
}

func NewTracker(store StatusStore, fast FastPath) *Tracker {
	return &Tracker{store: store, fast: fast, clock: time.Now}
}

// WithClock injects a deterministic clock for tests.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// SetOnline records the user as online. changed is false when the user was
// already online, e.g. a heartbeat or a second session.
func (t *Tracker) SetOnline(ctx context.Context, userID string) (model.PresenceRecord, bool, error) {
	now := t.clock()
	changed, err := t.store.SetStatus(ctx, userID, true, now)
	if err != nil {
		return model.PresenceRecord{}, false, err
	}
	if t.fast != nil {
		// fast-path failures degrade reads to the durable record only
		if err := t.fast.Online(ctx, userID, now); err != nil {
			logger.Warn("presence fast path online failed", zap.String("user", userID), zap.Error(err))
		}
	}
	return model.PresenceRecord{UserID: userID, IsOnline: true, LastSeen: now, UpdatedAt: now}, changed, nil
}

// SetOffline records the user as offline and stamps last_seen.
func (t *Tracker) SetOffline(ctx context.Context, userID string) (model.PresenceRecord, bool, error) {
	now := t.clock()
	changed, err := t.store.SetStatus(ctx, userID, false, now)
	if err != nil {
		return model.PresenceRecord{}, false, err
	}
	if t.fast != nil {
		if err := t.fast.Offline(ctx, userID); err != nil {
			logger.Warn("presence fast path offline failed", zap.String("user", userID), zap.Error(err))
		}
	}
	return model.PresenceRecord{UserID: userID, IsOnline: false, LastSeen: now, UpdatedAt: now}, changed, nil
}

// Heartbeat refreshes the activity timestamp without a transition. Keeps
// the user out of the next stale sweep.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	now := t.clock()
	if _, err := t.store.SetStatus(ctx, userID, true, now); err != nil {
		return err
	}
	if t.fast != nil {
		if err := t.fast.Heartbeat(ctx, userID); err != nil {
			logger.Warn("presence fast path heartbeat failed", zap.String("user", userID), zap.Error(err))
		}
	}
	return nil
}

// Status answers the point lookup. The redis key settles the online bit
// when present; last_seen always comes from the durable record.
func (t *Tracker) Status(ctx context.Context, userID string) (model.PresenceRecord, error) {
	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		return model.PresenceRecord{}, err
	}
	if t.fast != nil {
		if online, err := t.fast.IsOnline(ctx, userID); err == nil {
			rec.IsOnline = online || rec.IsOnline
		}
	}
	return rec, nil
}

// SweepStale flips every record still online but silent for longer than
// timeout. Only records whose flag actually flipped are returned, so a
// user who re-registered between the listing and the write is not
// reported and no transition is ever broadcast twice.
func (t *Tracker) SweepStale(ctx context.Context, timeout time.Duration) ([]model.PresenceRecord, error) {
	now := t.clock()
	cutoff := now.Add(-timeout)
	stale, err := t.store.ListStaleOnline(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var flipped []model.PresenceRecord
	for _, rec := range stale {
		changed, err := t.store.MarkOfflineIfStale(ctx, rec.UserID, cutoff, now)
		if err != nil {
			logger.Error("presence sweep write failed", zap.String("user", rec.UserID), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}
		if t.fast != nil {
			if err := t.fast.Offline(ctx, rec.UserID); err != nil {
				logger.Warn("presence fast path offline failed", zap.String("user", rec.UserID), zap.Error(err))
			}
		}
		rec.IsOnline = false
		rec.LastSeen = now
		rec.UpdatedAt = now
		flipped = append(flipped, rec)
	}
	if len(flipped) > 0 {
		logger.Infof("presence sweep marked %d users offline", len(flipped))
	}
	return flipped, nil
}
