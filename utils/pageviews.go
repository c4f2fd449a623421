package utils

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sensive/blog/models"
)

const (
	pageViewKeyPrefix   = "pv:day:"
	pageViewFlushPrefix = "pv:flush:"
	pageViewDayLayout   = "2006-01-02"
	// staging hashes that keep failing are dropped after this
	pageViewStagingTTL = 7 * 24 * time.Hour
)

// PageViewSink persists aggregated page views.
type PageViewSink interface {
	AddPageViews(ctx context.Context, day time.Time, path string, n int64) error
}

// PageViewCounter buffers page views in Redis hashes (one per day) and
// periodically moves them to the sink. Without Redis every view goes
// straight to the sink.
type PageViewCounter struct {
	rc   *redis.Client
	sink PageViewSink
	now  func() time.Time
}

// NewPageViewCounter creates a counter. rc may be nil.
func NewPageViewCounter(rc *redis.Client, sink PageViewSink) *PageViewCounter {
	return &PageViewCounter{rc: rc, sink: sink, now: time.Now}
}

// Record counts one view of path.
func (c *PageViewCounter) Record(ctx context.Context, path string) error {
	day := models.PageViewDay(c.now())
	if c.rc != nil {
		err := c.rc.HIncrBy(ctx, pageViewKey(day), path, 1).Err()
		if err == nil {
			return nil
		}
		Sugar.Warnf("page view buffer failed, writing through: %v", err)
	}
	return c.sink.AddPageViews(ctx, day, path, 1)
}

// Flush moves every buffered day into the sink. Staging hashes left by an
// earlier failed flush are retried first.
func (c *PageViewCounter) Flush(ctx context.Context) error {
	if c.rc == nil {
		return nil
	}
	if err := c.scan(ctx, pageViewFlushPrefix+"*", c.drainStaging); err != nil {
		return err
	}
	return c.scan(ctx, pageViewKeyPrefix+"*", c.flushKey)
}

func (c *PageViewCounter) scan(ctx context.Context, match string, fn func(context.Context, string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.rc.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := fn(ctx, key); err != nil {
				Sugar.Errorf("page view flush failed key=%s err=%v", key, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Start flushes every interval until ctx is done, then flushes once more.
// The returned channel is closed after the final flush.
func (c *PageViewCounter) Start(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if c.rc == nil {
		close(done)
		return done
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := c.Flush(flushCtx); err != nil {
					Sugar.Errorf("final page view flush failed: %v", err)
				}
				cancel()
				return
			case <-ticker.C:
				if err := c.Flush(ctx); err != nil {
					Sugar.Errorf("page view flush failed: %v", err)
				}
			}
		}
	}()
	return done
}

// flushKey renames the day hash first so concurrent HINCRBYs start a fresh hash.
func (c *PageViewCounter) flushKey(ctx context.Context, key string) error {
	if _, err := parsePageViewKey(key); err != nil {
		return err
	}
	staging := pageViewFlushPrefix + strings.TrimPrefix(key, pageViewKeyPrefix) + ":" + uuid.NewString()
	if err := c.rc.Rename(ctx, key, staging).Err(); err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return nil
		}
		return err
	}
	if err := c.rc.Expire(ctx, staging, pageViewStagingTTL).Err(); err != nil {
		return err
	}
	return c.drainStaging(ctx, staging)
}

// drainStaging hands every field of a staging hash to the sink, deleting each
// field once stored so a retry never counts it twice.
func (c *PageViewCounter) drainStaging(ctx context.Context, staging string) error {
	day, err := parseStagingKey(staging)
	if err != nil {
		return err
	}
	counts, err := c.rc.HGetAll(ctx, staging).Result()
	if err != nil {
		return err
	}
	for path, raw := range counts {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			Sugar.Warnf("dropping malformed page view count key=%s path=%s value=%q", staging, path, raw)
			_ = c.rc.HDel(ctx, staging, path).Err()
			continue
		}
		if err := c.sink.AddPageViews(ctx, day, path, n); err != nil {
			return err
		}
		if err := c.rc.HDel(ctx, staging, path).Err(); err != nil {
			return err
		}
	}
	return c.rc.Del(ctx, staging).Err()
}

func pageViewKey(day time.Time) string {
	return pageViewKeyPrefix + day.Format(pageViewDayLayout)
}

func parsePageViewKey(key string) (time.Time, error) {
	return time.ParseInLocation(pageViewDayLayout, strings.TrimPrefix(key, pageViewKeyPrefix), time.Local)
}

// parseStagingKey reads the day out of pv:flush:YYYY-MM-DD:<uuid>.
func parseStagingKey(key string) (time.Time, error) {
	rest := strings.TrimPrefix(key, pageViewFlushPrefix)
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		rest = rest[:i]
	}
	return time.ParseInLocation(pageViewDayLayout, rest, time.Local)
}
