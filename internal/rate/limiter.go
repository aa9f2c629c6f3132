package rate

import (
	"context"
	"sync"
	"time"
)

// Config defines token bucket parameters for one outbound destination.
type Config struct {
	RequestsPerSecond int
	Burst             int
}

// Limiter implements a token bucket rate limiter.
type Limiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	rate   float64
	burst  float64
}

// New creates a limiter that starts with a full bucket.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		tokens: float64(burst),
		last:   time.Now(),
		rate:   float64(cfg.RequestsPerSecond),
		burst:  float64(burst),
	}
}

// reserve takes a token if one is available; otherwise it reports how long until one is.
func (l *Limiter) reserve() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	l.last = now
	if l.tokens > l.burst {
		l.tokens = l.burst
	}

	if l.tokens >= 1 {
		l.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, time.Second
	}
	return false, time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
}

// Allow takes a token without waiting.
func (l *Limiter) Allow() bool {
	ok, _ := l.reserve()
	return ok
}

// Wait blocks until a token becomes available or context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, delay := l.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Manager holds one limiter per key, created on first use with the defaults.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	defaults Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

func (m *Manager) GetLimiter(key string) *Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	lim := New(m.defaults)
	m.limiters[key] = lim
	return lim
}

// Wait ensures rate limit compliance for a given key.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}
