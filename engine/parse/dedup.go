package parse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	hashKeyPrefix = "article_hash:"
	localCacheMax = 10000
)

// Deduper tracks recently seen content hashes. The source of truth is
// a shared Redis set-if-absent with per-entry TTL; a bounded in-process
// cache serves as hot path and as the fallback when Redis is down, so
// a store outage never blocks the pipeline.
type Deduper struct {
	rdb    *redis.Client // nil means local-only
	window time.Duration
	log    *slog.Logger

	mu       sync.Mutex
	seen     map[string]struct{}
	maxLocal int
}

// NewDeduper creates a Deduper. rdb may be nil for local-only operation.
func NewDeduper(rdb *redis.Client, window time.Duration, log *slog.Logger) *Deduper {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Deduper{
		rdb:      rdb,
		window:   window,
		log:      log,
		seen:     make(map[string]struct{}),
		maxLocal: localCacheMax,
	}
}

// Ping verifies the Redis connection; local-only mode always succeeds.
func (d *Deduper) Ping(ctx context.Context) error {
	if d.rdb == nil {
		return nil
	}
	return d.rdb.Ping(ctx).Err()
}

// Seen records hash and reports whether it was already seen within the
// dedup window.
func (d *Deduper) Seen(ctx context.Context, hash string) bool {
	d.mu.Lock()
	_, dup := d.seen[hash]
	d.mu.Unlock()
	if dup {
		return true
	}

	if d.rdb != nil {
		set, err := d.rdb.SetNX(ctx, hashKeyPrefix+hash, "1", d.window).Result()
		if err == nil {
			if !set {
				return true
			}
			d.remember(hash)
			return false
		}
		d.log.Warn("dedup store unavailable, using local cache", "error", err)
	}

	d.remember(hash)
	return false
}

// remember adds hash to the local cache, clearing it entirely when it
// grows past the bound.
func (d *Deduper) remember(hash string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.seen) > d.maxLocal {
		d.seen = make(map[string]struct{})
		d.log.Info("cleared local hash cache")
	}
	d.seen[hash] = struct{}{}
}
