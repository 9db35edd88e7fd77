package payment

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers provider event ids in Redis so redelivered events can
// be acknowledged without touching MySQL.  It is a fast path only: the
// unique payment reference in the purchases table stays authoritative.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewDeduper returns a Deduper, or nil when rdb is nil.  A nil Deduper
// claims every event.
func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{rdb: rdb, ttl: ttl, prefix: "webhook:event"}
}

func (d *Deduper) key(eventID string) string { return d.prefix + ":" + eventID }

// Claim reports whether this delivery is the first to see eventID.  Redis
// errors fail open so settlement falls through to the database check.
func (d *Deduper) Claim(ctx context.Context, eventID string) (bool, error) {
	if d == nil || eventID == "" {
		return true, nil
	}
	ok, err := d.rdb.SetNX(ctx, d.key(eventID), 1, d.ttl).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}

// Release forgets eventID so a retried delivery is processed again.
func (d *Deduper) Release(ctx context.Context, eventID string) error {
	if d == nil || eventID == "" {
		return nil
	}
	return d.rdb.Del(ctx, d.key(eventID)).Err()
}
