package upstream

import "sync/atomic"

// FailureCounter counts consecutive upstream failures across lease renewals
// and fetches. It is informational only.
type FailureCounter struct {
	n         atomic.Int64
	threshold int64
	onAlert   func(n int64)
}

// NewFailureCounter calls onAlert once each time the count reaches threshold.
// A zero threshold or nil onAlert disables alerting.
func NewFailureCounter(threshold int64, onAlert func(n int64)) *FailureCounter {
	return &FailureCounter{threshold: threshold, onAlert: onAlert}
}

// Inc records a failure and returns the new count.
func (c *FailureCounter) Inc() int64 {
	n := c.n.Add(1)
	if c.threshold > 0 && n == c.threshold && c.onAlert != nil {
		c.onAlert(n)
	}
	return n
}

// Reset records a success.
func (c *FailureCounter) Reset() { c.n.Store(0) }

// Load returns the current count.
func (c *FailureCounter) Load() int64 { return c.n.Load() }
