package repository

import (
	"time"

	"github.com/google/uuid"
)

// settings are shared by the store implementations.
type settings struct {
	metricsUpdateInterval time.Duration
	now                   func() time.Time
	newID                 func() string
}

func defaultSettings() settings {
	return settings{
		metricsUpdateInterval: 5 * time.Second,
		now:                   time.Now,
		newID:                 uuid.NewString,
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *settings) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithClock sets the time source used for ImportedAt.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the id source for imported comparables.
func WithIDGenerator(gen func() string) Option {
	return func(s *settings) {
		if gen != nil {
			s.newID = gen
		}
	}
}
