package http

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// LoginLimiter throttles login attempts per client address. Idle limiters expire so the
// table does not grow without bound. Expired entries are swept from Allow rather than by a
// go-cache janitor, so a limiter owns no goroutine and needs no Close.
type LoginLimiter struct {
	mu         sync.Mutex
	limiters   *gocache.Cache
	limit      rate.Limit
	burst      int
	idle       time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

// NewLoginLimiter allows perMinute attempts per client with the given burst.
func NewLoginLimiter(perMinute, burst int) *LoginLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 1
	}
	idle := 10 * time.Minute
	return &LoginLimiter{
		limiters:   gocache.New(idle, gocache.NoExpiration),
		limit:      rate.Limit(float64(perMinute) / 60),
		burst:      burst,
		idle:       idle,
		sweepEvery: time.Minute,
		lastSweep:  time.Now(),
		now:        time.Now,
	}
}

// Allow reports whether the client may attempt another login now.
func (l *LoginLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if now := l.now(); now.Sub(l.lastSweep) >= l.sweepEvery {
		l.limiters.DeleteExpired()
		l.lastSweep = now
	}

	var limiter *rate.Limiter
	if v, ok := l.limiters.Get(client); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	// refresh the idle expiry on every attempt
	l.limiters.Set(client, limiter, l.idle)
	return limiter.Allow()
}
