package resilience

import (
	"time"

	apperrors "github.com/GriffinCanCode/voicebridge/internal/errors"
)

// Circuit breaker configuration constants
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 1
	DefaultName              = "realtime endpoint"
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string
	Threshold         int                  // failures before opening
	ResetTimeout      time.Duration        // wait before half-open attempt
	HalfOpenSuccesses int                  // successes needed to close
	Trips             func(err error) bool // which failures count; nil means DialFailure
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		Name:              DefaultName,
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
		Trips:             DialFailure,
	}
}

// DialFailure reports whether err says the endpoint itself is unhealthy.
// Missing credentials or a cancelled caller are not the endpoint's fault.
func DialFailure(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeEndpointUnreachable, apperrors.CodeHandshakeFailed, apperrors.CodeTimeout:
		return true
	default:
		return false
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	if c.Trips == nil {
		c.Trips = DialFailure
	}
	return c
}
