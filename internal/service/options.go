package service

import (
	"time"

	"spamfightbot/internal/errors"
)

// Option configures the handlers in this package
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *errors.Logger
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = errors.NewLogger()
	}
	return o
}

// WithClock replaces time.Now for registry expiry and ban horizons
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func WithLogger(logger *errors.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
