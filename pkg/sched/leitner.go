// Package sched implements the scheduling core: the dual Leitner/SM2 review
// state tracker, the multi-factor scoring engine, and the scheduler that ties
// scoring, updates and the audit log together.
package sched

import (
	"time"
)

// Leitner box bounds. Box 0 means the fact was never seen.
const (
	LeitnerMinBox = 1
	LeitnerMaxBox = 10
)

// LeitnerState is the Leitner half of a (user, fact) review state.
type LeitnerState struct {
	Box int
	Due time.Time
}

// LeitnerInterval returns the review interval for a box level. The table
// grows geometrically: 1, 2, 4, ... days.
func LeitnerInterval(box int) time.Duration {
	if box < LeitnerMinBox {
		box = LeitnerMinBox
	}
	if box > LeitnerMaxBox {
		box = LeitnerMaxBox
	}
	return time.Duration(1<<(box-1)) * 24 * time.Hour
}

// ApplyLeitner computes the next Leitner state from the prior box level, the
// response, and the response date. A prior box below the minimum means first
// exposure and initializes to the minimum before the transition. The function
// is pure: same inputs, same outputs.
func ApplyLeitner(priorBox int, correct bool, date time.Time) LeitnerState {
	box := priorBox
	if box < LeitnerMinBox {
		box = LeitnerMinBox
	}
	if correct {
		box++
		if box > LeitnerMaxBox {
			box = LeitnerMaxBox
		}
	} else {
		box = LeitnerMinBox
	}
	return LeitnerState{
		Box: box,
		Due: date.Add(LeitnerInterval(box)),
	}
}
