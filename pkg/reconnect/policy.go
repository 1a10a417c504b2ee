// Package reconnect drives session recovery after a network disconnect:
// bounded retries with exponential backoff, paused while the host is offline.
package reconnect

import (
	"math"
	"time"
)

// Policy is the retry schedule
type Policy struct {
	MaxAttempts int           // attempts before giving up (default: 5)
	BaseDelay   time.Duration // wait after the first failure (default: 2s)
	MaxDelay    time.Duration // cap on a single wait, 0 for none
}

// DefaultPolicy returns the stock schedule: 5 attempts, 2s doubling
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
	}
}

// Delay returns the wait after attempt fails, base * 2^(attempt-1).
//
// With the default policy:
//   - attempt 1: 2s
//   - attempt 2: 4s
//   - attempt 3: 8s
//   - attempt 4: 16s
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			// saturate instead of overflowing into a negative wait
			d = math.MaxInt64
			break
		}
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Schedule returns every wait the policy can produce, one per failed attempt
// except the last
func (p Policy) Schedule() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for k := 1; k < p.MaxAttempts; k++ {
		out = append(out, p.Delay(k))
	}
	return out
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	return p
}
