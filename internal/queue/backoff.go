package queue

import "time"

// BackoffType selects the delay strategy between retry attempts.
type BackoffType string

// Backoff strategies.
const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

const maxBackoffDelay = 5 * time.Minute

// Backoff computes retry delays from a base delay.
type Backoff struct {
	Type  BackoffType
	Delay time.Duration
}

// Next returns the wait before retrying after the given failed attempt
// (1-based). Exponential doubles the base delay per prior attempt, capped.
func (b Backoff) Next(attempt int) time.Duration {
	delay := b.Delay
	if delay <= 0 {
		delay = time.Second
	}
	if b.Type == BackoffExponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= maxBackoffDelay {
				return maxBackoffDelay
			}
		}
	}
	if delay > maxBackoffDelay {
		return maxBackoffDelay
	}
	return delay
}
