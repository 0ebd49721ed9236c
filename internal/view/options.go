package view

import (
	"log/slog"
	"time"
)

type Option func(*View)

// WithSettle sets how long the view waits for more changes before it
// considers the root settled.
func WithSettle(d time.Duration) Option {
	return func(v *View) {
		if d > 0 {
			v.settle = d
		}
	}
}

// WithMaxSettle caps the doubling wait of an idle view.
func WithMaxSettle(d time.Duration) Option {
	return func(v *View) {
		if d > 0 {
			v.maxSettle = d
		}
	}
}

func WithOnSettle(fn SettleFunc) Option {
	return func(v *View) {
		v.onSettle = fn
	}
}

func WithRecentSize(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.recentSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *View) {
		if l != nil {
			v.log = l
		}
	}
}
