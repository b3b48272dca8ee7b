package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Policy describes a reconnect schedule. MaxRetries == 0 retries forever.
// When MaxBackoff exceeds Backoff the delay doubles per attempt up to the cap,
// otherwise every attempt waits Backoff.
type Policy struct {
	Backoff    time.Duration
	MaxBackoff time.Duration
	MaxRetries int
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Backoff
	if base <= 0 {
		base = time.Second
	}
	if p.MaxBackoff > base {
		return ExponentialBackoff(attempt, base, p.MaxBackoff)
	}
	return base
}

// Exhausted reports whether failures consecutive failed attempts used up the budget.
func (p Policy) Exhausted(failures int) bool {
	return p.MaxRetries > 0 && failures >= p.MaxRetries
}
