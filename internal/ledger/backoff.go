package ledger

import "time"

const (
	retryBaseDelay = 10 * time.Millisecond
	retryMaxDelay  = 250 * time.Millisecond
)

// retryBackoff returns retryBaseDelay * 2^attempt, capped at retryMaxDelay.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		return retryBaseDelay
	}
	if attempt > 30 {
		return retryMaxDelay
	}

	delay := retryBaseDelay * time.Duration(1<<attempt)
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}
