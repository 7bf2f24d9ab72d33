// Package offset estimates the sub-second correction between the local
// clock and a station's broadcast second-marks from a rolling window of
// pulse edge timestamps.
package offset

import (
	"errors"
	"sort"
	"time"
)

// ErrInsufficientSamples is returned when fewer than window pulse
// timestamps are available.
var ErrInsufficientSamples = errors.New("offset: fewer than 59 pulse timestamps available")

// ErrOutOfTrust is returned when any sample's microsecond-of-second
// component is too far from zero to trust averaging.
var ErrOutOfTrust = errors.New("offset: pulse stream not close enough to system clock")

const (
	window        = 59
	trimLow       = 15
	trimHigh      = 45 // exclusive; the trimmed mean covers [trimLow, trimHigh)
	trustBoundary = 128000 // microseconds
)

// Estimate computes a trimmed-mean sub-second offset, in microseconds, from
// the last 59 pulse timestamps in times (times[len(times)-59:]). It fails
// if fewer than 59 timestamps are available, or if any sample's offset
// exceeds the trust boundary.
func Estimate(times []time.Time) (int64, error) {
	if len(times) < window {
		return 0, ErrInsufficientSamples
	}
	recent := times[len(times)-window:]

	values := make([]int64, window)
	for i, t := range recent {
		usec := int64(t.Nanosecond() / 1000)
		if usec > 500000 {
			usec -= 1000000
		}
		if abs64(usec) > trustBoundary {
			return 0, ErrOutOfTrust
		}
		values[i] = usec
	}

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	var sum int64
	for _, v := range values[trimLow:trimHigh] {
		sum += v
	}
	return sum / int64(trimHigh-trimLow), nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
