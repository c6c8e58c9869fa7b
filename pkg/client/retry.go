package client

import "time"

// Retry defaults. Delay for retry N is min(MaxDelay, InitialDelay << (N-1)).
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 10 * time.Second
)

// RetryPolicy controls how failed requests are retried. Retries are
// method-blind: a timed-out POST whose request actually landed will be
// sent again, so mutating endpoints rely on server-side conflict checks.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// RetryDecision reports whether attempt (1-based count of failures so far)
// should be retried, and after what delay. Only transport failures and
// server-side errors are retried; client errors never are.
func (p RetryPolicy) RetryDecision(attempt int, kind ErrorKind) (bool, time.Duration) {
	if attempt < 1 || attempt > p.MaxRetries {
		return false, 0
	}
	if kind != KindNetworkFailure && kind != KindServerError {
		return false, 0
	}

	delay := p.InitialDelay << (attempt - 1)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return true, delay
}
