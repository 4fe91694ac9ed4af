package tide

import (
	"math"
	"time"
)

// extremeThreshold is the level change between adjacent samples below which
// the pair is taken to straddle a high or low water.
const extremeThreshold = 0.1

// defaultPhase is reported when the series cannot place now between two samples.
const defaultPhase = PhaseRising

// Classify returns the tide phase at now.
//
// It finds the sample at or before now whose successor is after now, and
// compares the two levels. Series with fewer than two samples, or that do
// not bracket now, classify as rising.
func Classify(series Series, now time.Time) Phase {
	if len(series) < 2 {
		return defaultPhase
	}

	i := bracket(series, now)
	if i < 0 || i+1 >= len(series) {
		return defaultPhase
	}

	cur := series[i].Value
	next := series[i+1].Value

	if math.Abs(next-cur) < extremeThreshold {
		if cur > next {
			return PhaseHigh
		}
		return PhaseLow
	}

	if cur < next {
		return PhaseRising
	}
	return PhaseFalling
}

// Current returns the sample in effect at now: the bracketing sample, or the
// first sample when none brackets now.
func Current(series Series, now time.Time) (Sample, bool) {
	if len(series) == 0 {
		return Sample{}, false
	}
	if i := bracket(series, now); i >= 0 {
		return series[i], true
	}
	return series[0], true
}

// bracket returns the first index i with series[i].Time <= now and now before
// series[i+1].Time; the last sample has no upper edge. It returns -1 if none.
func bracket(series Series, now time.Time) int {
	for i, s := range series {
		if now.Before(s.Time) {
			continue
		}
		if i == len(series)-1 || now.Before(series[i+1].Time) {
			return i
		}
	}
	return -1
}
