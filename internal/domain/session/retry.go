package session

import "time"

// RetryPolicy decides how long to wait before reconnect attempt n
// (1-based). The manager retries forever on non-terminal disconnects;
// the policy only shapes the pacing.
type RetryPolicy interface {
	Next(attempt int) time.Duration
}

// Immediate reconnects after a fixed minimum delay. The delay floor
// keeps a persistent failure from turning into a tight dial loop.
type Immediate struct {
	Delay time.Duration
}

func (p Immediate) Next(int) time.Duration {
	if p.Delay <= 0 {
		return time.Second
	}
	return p.Delay
}

// Backoff doubles the delay per consecutive failed attempt, capped at
// Max. The counter resets once a connection opens.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

func (p Backoff) Next(attempt int) time.Duration {
	min := p.Min
	if min <= 0 {
		min = time.Second
	}
	max := p.Max
	if max < min {
		max = min
	}
	d := min
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
