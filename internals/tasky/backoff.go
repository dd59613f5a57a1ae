package tasky

import (
	"math"
	"math/rand/v2"
	"time"
)

type BackoffConfig struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

func BackoffExponential(cfg BackoffConfig) func(attempts int) time.Duration {
	base := cfg.Base
	max := cfg.Max
	factor := cfg.Factor
	if factor <= 0 {
		factor = 2
	}

	return func(attempts int) time.Duration {
		if attempts <= 0 || base <= 0 {
			return 0
		}
		exponent := float64(attempts - 1)
		delay := float64(base) * math.Pow(factor, exponent)
		if delay < 0 {
			return 0
		}
		if max > 0 && delay > float64(max) {
			return max
		}
		if delay > float64(math.MaxInt64) {
			if max > 0 {
				return max
			}
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(delay)
	}
}

// BackoffJitter spreads each delay of next uniformly over
// [delay*(1-fraction), delay*(1+fraction)].
func BackoffJitter(next func(attempts int) time.Duration, fraction float64) func(attempts int) time.Duration {
	return backoffJitter(next, fraction, rand.Float64)
}

func backoffJitter(next func(attempts int) time.Duration, fraction float64, random func() float64) func(attempts int) time.Duration {
	if fraction <= 0 {
		return next
	}
	if fraction > 1 {
		fraction = 1
	}
	return func(attempts int) time.Duration {
		delay := next(attempts)
		if delay <= 0 {
			return delay
		}
		scale := 1 - fraction + 2*fraction*random()
		return time.Duration(float64(delay) * scale)
	}
}
