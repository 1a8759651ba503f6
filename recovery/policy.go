package recovery

import "time"

// Policy bounds retries for a single key.
type Policy struct {
	// MaxRetries is the attempt ceiling per key. Default: 3
	MaxRetries int

	// BaseDelay seeds the exponential backoff. Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps a single backoff sleep. Default: 30s
	MaxDelay time.Duration
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// normalized fills zero durations with defaults and clamps negatives.
// A zero MaxRetries is kept: it disables recovery entirely.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// Backoff returns BaseDelay * 2^attempts, capped at MaxDelay.
func (p Policy) Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultPolicy().MaxDelay
	}
	d := p.BaseDelay
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxDelay || d <= 0 {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}
