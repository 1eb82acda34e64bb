package core

import (
	"golang.org/x/time/rate"
	"sync"
	"time"
)

const limiterIdle = 10 * time.Minute

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter 按键（矿工标识或 IP）限流
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	rate     rate.Limit
	burst    int
	pruned   time.Time
}

// NewLimiter 速率 <= 0 时返回 nil，表示不限流
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*keyedLimiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		pruned:   time.Now(),
	}
}

func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.pruned) > limiterIdle {
		for k, kl := range l.limiters {
			if now.Sub(kl.lastSeen) > limiterIdle {
				delete(l.limiters, k)
			}
		}
		l.pruned = now
	}

	kl, ok := l.limiters[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = kl
	}
	kl.lastSeen = now
	return kl.limiter.AllowN(now, 1)
}
