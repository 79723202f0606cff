package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyThrottle  = "lt" // STRING. lt:{eventId}:{client}:{role} -> failed attempt count, TTL = window
	KeySeparator = ":"
)

// ThrottleRepository counts failed login attempts per (event, client, role)
// in redis. The INCR/EXPIRE pair gives a rolling window: the key expires
// window after the first failure and every count in between is atomic.
type ThrottleRepository struct {
	cl     *redis.Client
	window time.Duration
	log    *slog.Logger
}

func NewThrottleRepository(cl *redis.Client, window time.Duration, log *slog.Logger) *ThrottleRepository {
	return &ThrottleRepository{
		cl:     cl,
		window: window,
		log:    log.With(slog.String("item", "ThrottleRepository")),
	}
}

// Fail records one failed attempt and returns the new count for the window.
func (r *ThrottleRepository) Fail(ctx context.Context, eventID, client, role string) (int64, error) {
	key := getKey(KeyThrottle, eventID, client, role)

	count, err := r.cl.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cannot increment attempt counter: %w", err)
	}

	if count == 1 {
		if _, err := r.cl.Expire(ctx, key, r.window).Result(); err != nil {
			return 0, fmt.Errorf("cannot set counter expiry: %w", err)
		}
	}

	return count, nil
}

// Count returns the current failed-attempt count without touching it.
func (r *ThrottleRepository) Count(ctx context.Context, eventID, client, role string) (int64, error) {
	count, err := r.cl.Get(ctx, getKey(KeyThrottle, eventID, client, role)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}

		return 0, fmt.Errorf("cannot get attempt counter: %w", err)
	}

	return count, nil
}

// Reset clears the counter after a successful verification.
func (r *ThrottleRepository) Reset(ctx context.Context, eventID, client, role string) error {
	if _, err := r.cl.Del(ctx, getKey(KeyThrottle, eventID, client, role)).Result(); err != nil {
		return fmt.Errorf("cannot reset attempt counter: %w", err)
	}

	return nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
