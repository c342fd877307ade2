package scoring

import "time"

// Option configures a scoring service.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for created timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) *options {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
