package resilience

import "time"

// Config is the retry and circuit breaker policy shared by the Grobid, vLLM
// and NATS clients. Zero fields fall back to DefaultConfig.
type Config struct {
	// RetryMaxAttempts counts the first call.
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	// BreakerEnabled gives every operation name its own circuit.
	BreakerEnabled bool
	// BreakerMinRequests is the sample size before the failure ratio counts.
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
	// BreakerHalfOpenMaxCalls is how many trial calls a half-open circuit lets through.
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig suits a batch over a single Grobid or vLLM instance. A busy
// Grobid answers 503 until a worker frees up, which usually takes a few
// seconds per header, so retries start at one second and stop growing at
// twenty. Batches run one document at a time, so five calls are enough to
// judge a circuit, and a tripped one waits a minute for the service to
// restart.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     20 * time.Second,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c

	out.RetryMaxAttempts = positiveOr(out.RetryMaxAttempts, def.RetryMaxAttempts)
	out.RetryInitialBackoff = positiveOr(out.RetryInitialBackoff, def.RetryInitialBackoff)
	out.RetryMaxBackoff = max(positiveOr(out.RetryMaxBackoff, def.RetryMaxBackoff), out.RetryInitialBackoff)
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	out.BreakerMinRequests = positiveOr(out.BreakerMinRequests, def.BreakerMinRequests)
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	out.BreakerOpenTimeout = positiveOr(out.BreakerOpenTimeout, def.BreakerOpenTimeout)
	out.BreakerHalfOpenMaxCalls = positiveOr(out.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)

	return out
}

// nextBackoff grows a retry wait by the multiplier, capped at RetryMaxBackoff.
func (c Config) nextBackoff(current time.Duration) time.Duration {
	return min(time.Duration(float64(current)*c.RetryMultiplier), c.RetryMaxBackoff)
}

func positiveOr[T int | uint32 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
