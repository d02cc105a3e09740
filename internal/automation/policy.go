package automation

import (
	"math"
	"time"
)

// HardAttemptLimit caps attempts per application whatever the policy says
const HardAttemptLimit = 10

// Policy is the retry budget and backoff configuration.
type Policy struct {
	MaxAttempts        int           `yaml:"max_attempts"`
	UnknownMaxAttempts int           `yaml:"unknown_max_attempts"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	// ceiling for user-requested retries once the automatic budget is spent
	ManualMaxAttempts int `yaml:"manual_max_attempts"`
}

// DefaultPolicy: 3 attempts (2 for unknown failures), 1m base, 1h cap
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:        3,
		UnknownMaxAttempts: 2,
		BaseDelay:          time.Minute,
		MaxDelay:           time.Hour,
		ManualMaxAttempts:  HardAttemptLimit,
	}
}

// Budget returns how many attempts an application failing with cat may use
func (p Policy) Budget(cat Category) int {
	max := p.MaxAttempts
	if cat == CategoryUnknown && p.UnknownMaxAttempts > 0 && p.UnknownMaxAttempts < max {
		max = p.UnknownMaxAttempts
	}
	if max > HardAttemptLimit {
		max = HardAttemptLimit
	}
	return max
}

// ManualLimit is how many attempts an application may reach through manual retries
func (p Policy) ManualLimit() int {
	if p.ManualMaxAttempts <= 0 || p.ManualMaxAttempts > HardAttemptLimit {
		return HardAttemptLimit
	}
	return p.ManualMaxAttempts
}

// ShouldRetry decides whether a failure after `attempts` attempts is eligible for the automatic sweep
func (p Policy) ShouldRetry(cat Category, attempts int) bool {
	return cat.Retryable() && attempts < p.Budget(cat)
}

// Backoff returns the wait before the next automatic retry.
func (p Policy) Backoff(attempts int) time.Duration {
	return Backoff(attempts, p.BaseDelay, p.MaxDelay)
}

// Backoff computes base * 2^attempts, capped at max. A non-positive max means uncapped.
func Backoff(attempts int, base, max time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if base <= 0 {
		return 0
	}
	delay := float64(base) * math.Pow(2, float64(attempts))
	if max > 0 && delay > float64(max) {
		return max
	}
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
