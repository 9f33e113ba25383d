package process

import "time"

// BackoffConfig parameterizes the retry policy spec.md §4.5 describes:
// exponential backoff with a 1s base, a 30s cap, and 3 retries by default.
type BackoffConfig struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{Base: time.Second, Cap: 30 * time.Second, MaxRetries: 3}
}

// Delay returns the backoff delay before retry attempt n (1-indexed),
// doubling from Base and saturating at Cap.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.Cap {
			return c.Cap
		}
	}
	return d
}
