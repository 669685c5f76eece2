package tracking

import "time"

// kDeathCountdownIters is the default number of ticks a zombie tracker
// is kept alive after close, to drain trailing out-of-order events.
const kDeathCountdownIters = 3

// defaultInactivityDuration is the default wall-clock gap after which a
// tracker with no update is considered inactive.
const defaultInactivityDuration = 5 * time.Minute

// Config is the immutable, process-wide knobs the registry is
// constructed with; test overrides go through the With* copy methods
// below rather than mutating a shared instance.
type Config struct {
	// InactivityDuration is compared against a monotonic steady clock in
	// ConnectionTracker.IterationTick.
	InactivityDuration time.Duration
	// DeathCountdownIters is the default countdown passed to
	// MarkForDeath when a close event arrives.
	DeathCountdownIters int32
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		InactivityDuration:  defaultInactivityDuration,
		DeathCountdownIters: kDeathCountdownIters,
	}
}

// WithInactivityDuration returns a copy of cfg with InactivityDuration
// overridden, for test use.
func (cfg Config) WithInactivityDuration(d time.Duration) Config {
	cfg.InactivityDuration = d
	return cfg
}

// WithDeathCountdownIters returns a copy of cfg with DeathCountdownIters
// overridden, for test use.
func (cfg Config) WithDeathCountdownIters(n int32) Config {
	cfg.DeathCountdownIters = n
	return cfg
}
