package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// JitterPolicy describes exponential backoff with symmetric jitter:
// delay_n = min(MaxInterval, InitialInterval * Multiplier^(n-1)) ± RandomizationFactor.
type JitterPolicy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// MaxRetryAfter caps a server supplied floor. Zero means MaxInterval.
	MaxRetryAfter time.Duration
}

func DefaultJitterPolicy() JitterPolicy {
	return JitterPolicy{
		InitialInterval:     1 * time.Second,
		MaxInterval:         60 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.2,
	}
}

// Schedule hands out the retry delays of a single delivery attempt.
// It is not safe for concurrent use; each attempt owns its own schedule.
type Schedule struct {
	exp      *backoff.ExponentialBackOff
	maxFloor time.Duration
	last     time.Duration
}

func (p JitterPolicy) NewSchedule() *Schedule {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.RandomizationFactor
	exp.MaxElapsedTime = 0
	exp.Reset()

	maxFloor := p.MaxRetryAfter
	if maxFloor <= 0 {
		maxFloor = p.MaxInterval
	}
	return &Schedule{exp: exp, maxFloor: maxFloor}
}

// Next returns the next delay. The result is never below floor (e.g. a
// Retry-After hint) and never below the previously returned delay. The
// floor itself is capped by MaxRetryAfter.
func (s *Schedule) Next(floor time.Duration) time.Duration {
	if s.maxFloor > 0 && floor > s.maxFloor {
		floor = s.maxFloor
	}

	d := s.exp.NextBackOff()
	if d < floor {
		d = floor
	}
	if d < s.last {
		d = s.last
	}
	s.last = d
	return d
}
