package signal

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dkeye/Relay/internal/domain"
)

// RateLimiter keeps one token bucket per connection: limit messages per
// interval with bursts up to limit. A non-positive limit disables it.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.ConnID]*rate.Limiter
	every    rate.Limit
	burst    int
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[domain.ConnID]*rate.Limiter),
		now:      time.Now,
	}
	if limit <= 0 {
		return rl
	}
	if interval <= 0 {
		interval = time.Second
	}
	rl.every = rate.Every(interval / time.Duration(limit))
	rl.burst = limit
	return rl
}

func (rl *RateLimiter) Allow(id domain.ConnID) bool {
	if rl.burst == 0 {
		return true
	}
	rl.mu.Lock()
	l, ok := rl.limiters[id]
	if !ok {
		l = rate.NewLimiter(rl.every, rl.burst)
		rl.limiters[id] = l
	}
	rl.mu.Unlock()
	return l.AllowN(rl.now(), 1)
}

// Forget drops the bucket of a closed connection.
func (rl *RateLimiter) Forget(id domain.ConnID) {
	rl.mu.Lock()
	delete(rl.limiters, id)
	rl.mu.Unlock()
}
