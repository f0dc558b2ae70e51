package sched

import (
	"math"
	"time"
)

// SM2 constants from the classical SuperMemo-2 formulation.
const (
	// SM2MinEFactor is the floor of the ease factor.
	SM2MinEFactor = 1.3

	// SM2InitialEFactor is the ease factor assigned on first exposure.
	SM2InitialEFactor = 2.5

	// SM2MaxIntervalDays caps the computed interval.
	SM2MaxIntervalDays = 365

	// Quality mapping for binary responses on the 0-5 SM2 scale.
	sm2QualityCorrect = 4
	sm2QualityWrong   = 1
)

// SM2State is the SM2 half of a (user, fact) review state.
type SM2State struct {
	EFactor    float64
	Interval   int // days
	Repetition int
	Due        time.Time
}

// ApplySM2 computes the next SM2 state from the prior state, the response,
// and the response date. A zero-valued prior state means first exposure. The
// function is pure: same inputs, same outputs.
func ApplySM2(prior SM2State, correct bool, date time.Time) SM2State {
	ef := prior.EFactor
	if ef == 0 {
		ef = SM2InitialEFactor
	}

	quality := sm2QualityWrong
	if correct {
		quality = sm2QualityCorrect
	}

	// EF' = EF + (0.1 - (5-q)*(0.08 + (5-q)*0.02)), floored at 1.3.
	q := float64(quality)
	ef += 0.1 - (5-q)*(0.08+(5-q)*0.02)
	if ef < SM2MinEFactor {
		ef = SM2MinEFactor
	}

	next := SM2State{EFactor: ef}
	if correct {
		next.Repetition = prior.Repetition + 1
		switch next.Repetition {
		case 1:
			next.Interval = 1
		case 2:
			next.Interval = 6
		default:
			next.Interval = int(math.Round(float64(prior.Interval) * ef))
		}
	} else {
		next.Repetition = 0
		next.Interval = 1
	}
	if next.Interval < 1 {
		next.Interval = 1
	}
	if next.Interval > SM2MaxIntervalDays {
		next.Interval = SM2MaxIntervalDays
	}
	next.Due = date.Add(time.Duration(next.Interval) * 24 * time.Hour)
	return next
}
