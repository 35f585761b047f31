package resilience

import "time"

// Config tunes retries and the per-operation circuit breaker used for
// outbound calls: queue publishes, alert delivery and archive writes.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

const (
	defaultAttempts       = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = time.Second
	defaultMultiplier     = 2.0

	defaultBreakerMinRequests  = 10
	defaultBreakerFailureRatio = 0.5
	defaultBreakerOpenTimeout  = 30 * time.Second
	defaultBreakerHalfOpen     = 2
)

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    defaultAttempts,
		RetryInitialBackoff: defaultInitialBackoff,
		RetryMaxBackoff:     defaultMaxBackoff,
		RetryMultiplier:     defaultMultiplier,

		BreakerEnabled:          true,
		BreakerMinRequests:      defaultBreakerMinRequests,
		BreakerFailureRatio:     defaultBreakerFailureRatio,
		BreakerOpenTimeout:      defaultBreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: defaultBreakerHalfOpen,
	}
}

// OutboundConfig is DefaultConfig with the two knobs exposed through the
// environment. attempts <= 0 keeps the default.
func OutboundConfig(attempts int, breakerEnabled bool) Config {
	cfg := DefaultConfig()
	if attempts > 0 {
		cfg.RetryMaxAttempts = attempts
	}
	cfg.BreakerEnabled = breakerEnabled
	return cfg
}

func (c Config) normalize() Config {
	out := c
	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = defaultAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = defaultInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = defaultMaxBackoff
	}
	out.RetryMaxBackoff = max(out.RetryMaxBackoff, out.RetryInitialBackoff)
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = defaultMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = defaultBreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = defaultBreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = defaultBreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = defaultBreakerHalfOpen
	}
	return out
}
