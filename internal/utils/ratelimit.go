// internal/utils/ratelimit.go
package utils

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key (client IP, chat user).
type KeyedLimiter struct {
	visitors map[string]*visitor
	mtx      sync.Mutex
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewKeyedLimiter(r rate.Limit, b int) *KeyedLimiter {
	kl := &KeyedLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
		ttl:      3 * time.Minute,
		stop:     make(chan struct{}),
	}

	// Clean up old visitors every minute
	go kl.cleanupVisitors(time.Minute)

	return kl
}

func (kl *KeyedLimiter) cleanupVisitors(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-kl.stop:
			return
		case <-ticker.C:
			kl.mtx.Lock()
			for key, v := range kl.visitors {
				if time.Since(v.lastSeen) > kl.ttl {
					delete(kl.visitors, key)
				}
			}
			kl.mtx.Unlock()
		}
	}
}

func (kl *KeyedLimiter) getVisitor(key string) *rate.Limiter {
	kl.mtx.Lock()
	defer kl.mtx.Unlock()

	v, exists := kl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(kl.rate, kl.burst)
		kl.visitors[key] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.getVisitor(key).Allow()
}

func (kl *KeyedLimiter) Stop() {
	kl.stopOnce.Do(func() { close(kl.stop) })
}
