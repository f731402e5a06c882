package chat

import "time"

// Option alters Resolver and Ledger defaults
type Option func(*options)

type options struct {
	now    func() time.Time
	fanOut int
}

func defaultOptions(opts []Option) options {
	o := options{
		now:    func() time.Time { return time.Now().UTC() },
		fanOut: 8,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces the clock used for room timestamps.
// For messages it only gives a lower bound, stores stamp them in insertion order.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithFanOut limits concurrent per-room lookups while building room summaries
func WithFanOut(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.fanOut = n
		}
	}
}
