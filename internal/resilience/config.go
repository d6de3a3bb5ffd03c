package resilience

import "time"

// Circuit breaker configuration constants
const (
	// Default configuration
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Frame grabs: a few failed grabs mean the element is gone
	GrabThreshold         = 3
	GrabResetTimeout      = 5 * time.Second
	GrabHalfOpenSuccesses = 1

	// Catalog writes: tolerate a busy database longer
	StoreThreshold         = 10
	StoreResetTimeout      = 60 * time.Second
	StoreHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// GrabConfig trips quickly so a vanished source is relocated.
func GrabConfig() Config {
	return Config{
		Threshold:         GrabThreshold,
		ResetTimeout:      GrabResetTimeout,
		HalfOpenSuccesses: GrabHalfOpenSuccesses,
	}
}

// StoreConfig is lenient for local database writes.
func StoreConfig() Config {
	return Config{
		Threshold:         StoreThreshold,
		ResetTimeout:      StoreResetTimeout,
		HalfOpenSuccesses: StoreHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
