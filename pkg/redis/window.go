package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Decision is the outcome of one sliding-window check.
type Decision struct {
	Allowed   bool
	Count     int
	Remaining int
}

// SlidingWindow counts events per key over a rolling window using a sorted
// set scored by event time. Rejected events are removed again so they do not
// count against the caller.
type SlidingWindow struct {
	client goredis.UniversalClient
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewSlidingWindow(client goredis.UniversalClient, prefix string, window time.Duration) *SlidingWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{client: client, prefix: prefix, window: window, now: time.Now}
}

// Allow records one event for key and reports whether it fits under limit.
// A limit <= 0 means unlimited and never touches Redis.
func (w *SlidingWindow) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	if w == nil || w.client == nil {
		return Decision{}, fmt.Errorf("sliding window: redis client not configured")
	}

	now := w.now()
	redisKey := w.prefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	floor := now.Add(-w.window).UnixNano()

	var card *goredis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(floor, 10))
		pipe.ZAdd(ctx, redisKey, goredis.Z{Score: float64(now.UnixNano()), Member: member})
		card = pipe.ZCard(ctx, redisKey)
		pipe.PExpire(ctx, redisKey, w.window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("sliding window %s: %w", key, err)
	}

	count := int(card.Val())
	if count > limit {
		if err := w.client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return Decision{}, fmt.Errorf("sliding window %s: %w", key, err)
		}
		return Decision{Allowed: false, Count: count - 1, Remaining: 0}, nil
	}
	return Decision{Allowed: true, Count: count, Remaining: limit - count}, nil
}
