package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/pkg/errors"
	"github.com/charlesng35/policyhub/pkg/response"
)

// RateStore coordinates fixed-window counters.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
	// Prune drops counters whose window has closed and reports how many went.
	Prune(ctx context.Context) (int64, error)
}

// MemoryRateStore keeps counters in process. Expired windows are dropped
// lazily on the next increment for the same key and by Prune.
type MemoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*memoryCounter
	clock func() time.Time
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store.
func NewMemoryRateStore(clock func() time.Time) *MemoryRateStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryRateStore{data: make(map[string]*memoryCounter), clock: clock}
}

func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.data[key]
	if !ok || !now.Before(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}
	counter.count++
	return counter.count, counter.windowEnd.Sub(now), nil
}

// Prune removes counters whose window has closed.
func (s *MemoryRateStore) Prune(context.Context) (int64, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, counter := range s.data {
		if !now.Before(counter.windowEnd) {
			delete(s.data, key)
			removed++
		}
	}
	return removed, nil
}

// RateLimit limits requests per (principal or client IP, route) within a fixed
// window. A non-positive limit disables the middleware.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		subject := c.GetString(CtxUserIDKey)
		if subject == "" {
			subject = c.ClientIP()
		}
		key := subject + "|" + c.FullPath()

		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			// fail open
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())+1))
			response.Error(c, errors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
