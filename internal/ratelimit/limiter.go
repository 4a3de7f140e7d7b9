// Package ratelimit throttles instrument tool calls with per-key token buckets.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLimited is wrapped by CheckLimit when a tool has no tokens left.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter is a per-key token bucket. Each key starts with a full burst and
// refills at rate tokens per second. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	nowFunc func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a limiter with the given refill rate (tokens/sec) and burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow consumes one token for key, reporting false when none is available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b := l.refill(key, now)
	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// tokens reports how many whole tokens key currently has.
func (l *Limiter) tokens(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.refill(key, l.nowFunc()).tokens)
}

func (l *Limiter) refill(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
		return b
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	if elapsed > 0 {
		b.tokens += l.rate * elapsed
		if b.tokens > float64(l.burst) {
			b.tokens = float64(l.burst)
		}
		b.lastCheck = now
	}
	return b
}

// Limit is the rate and burst for one tool.
type Limit struct {
	PerMinute float64
	Burst     int
}

// DefaultLimits are the per-tool budgets used by the tool server. Pattern
// authoring is cheap and allowed in bulk; retrieval and plan runs block for
// the settling delay and are kept scarce.
var DefaultLimits = map[string]Limit{
	"wgfmu_open_session":       {PerMinute: 30, Burst: 5},
	"wgfmu_close_session":      {PerMinute: 30, Burst: 5},
	"wgfmu_clear":              {PerMinute: 30, Burst: 5},
	"wgfmu_create_pattern":     {PerMinute: 600, Burst: 50},
	"wgfmu_add_vector":         {PerMinute: 6000, Burst: 500},
	"wgfmu_add_sequence":       {PerMinute: 600, Burst: 50},
	"wgfmu_get_measure_values": {PerMinute: 10, Burst: 2},
	"wgfmu_run_plan":           {PerMinute: 5, Burst: 1},
	"wgfmu_list_runs":          {PerMinute: 60, Burst: 10},
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters builds limiters from DefaultLimits.
func NewToolLimiters() ToolLimiters {
	return FromLimits(DefaultLimits)
}

// FromLimits builds one limiter per entry in limits.
func FromLimits(limits map[string]Limit) ToolLimiters {
	tl := make(ToolLimiters, len(limits))
	for tool, lim := range limits {
		tl[tool] = NewLimiter(lim.PerMinute/60.0, lim.Burst)
	}
	return tl
}

// CheckLimit returns an error wrapping ErrLimited when toolName is out of
// tokens. Tools without a limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrLimited, toolName)
	}
	return nil
}
