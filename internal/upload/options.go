package upload

import (
	"time"

	"github.com/studyhub/backend/internal/clock"
	"go.uber.org/zap"
)

// Timing controls the simulation pace.
type Timing struct {
	// TickInterval is the period between progress increments.
	TickInterval time.Duration
	// ProgressStep is the percentage added per tick.
	ProgressStep int
	// ResolveDelay is measured from ingestion (or retry) and is independent
	// of tick progress.
	ResolveDelay time.Duration
}

// DefaultTiming returns 10% every 300ms and resolution after 4s.
func DefaultTiming() Timing {
	return Timing{
		TickInterval: 300 * time.Millisecond,
		ProgressStep: 10,
		ResolveDelay: 4 * time.Second,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the timer source.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithTiming overrides the simulation pace. Non-positive fields keep their defaults.
func WithTiming(t Timing) Option {
	return func(m *Manager) {
		if t.TickInterval > 0 {
			m.timing.TickInterval = t.TickInterval
		}
		if t.ProgressStep > 0 {
			m.timing.ProgressStep = t.ProgressStep
		}
		if t.ResolveDelay > 0 {
			m.timing.ResolveDelay = t.ResolveDelay
		}
	}
}

// WithResolver sets the outcome decision.
func WithResolver(r Resolver) Option {
	return func(m *Manager) {
		if r != nil {
			m.resolver = r
		}
	}
}

// WithIDGenerator sets the item id source. Ids that are empty or already
// live are rejected and the generator is asked again.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.idGen = gen
	}
}

// WithRecorder sets the lifecycle observer.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
