package ratelimit

import (
	"sync"
	"time"
)

type RateLimit interface {
	Allow(addr string) bool
}

type windowData struct {
	count       int
	windowStart time.Time
}

// FixedWindowLimiter counts requests per address inside fixed windows.
// Coarse but cheap; the validate endpoint is the only unauthenticated
// surface and does not need anything smoother.
type FixedWindowLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string]*windowData
	mutex       sync.Mutex
}

func New(maxRequests int, window time.Duration) RateLimit {
	return &FixedWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string]*windowData),
	}
}

func (rl *FixedWindowLimiter) Allow(addr string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	wd := rl.requests[addr]

	if wd == nil || now.Sub(wd.windowStart) > rl.window {
		if rl.maxRequests == 0 {
			return false
		}

		rl.requests[addr] = &windowData{count: 1, windowStart: now}
		return true
	}

	if wd.count >= rl.maxRequests {
		return false
	}
	wd.count++

	return true
}
