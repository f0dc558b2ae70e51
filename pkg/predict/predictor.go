// Package predict defines the recall predictor boundary: given a user's and
// a fact's response histories, estimate the probability that the user recalls
// the fact right now. The scheduling core treats predictors as pure,
// possibly-stale functions and degrades to a neutral score when one fails.
package predict

import (
	"context"
	"errors"
	"time"
)

// Features is the input to a recall prediction, mirroring the feature set
// the retention model was trained on.
type Features struct {
	// UserAccuracy is the user's mean accuracy across all facts.
	UserAccuracy float64 `json:"user_accuracy"`

	// FactAccuracy is the fact's mean accuracy across all users.
	FactAccuracy float64 `json:"fact_accuracy"`

	// CountCorrect and CountWrong are the user's prior outcomes on this fact.
	CountCorrect int `json:"count_correct"`
	CountWrong   int `json:"count_wrong"`
}

// Predictor estimates recall probability in [0, 1].
type Predictor interface {
	Predict(ctx context.Context, f Features) (float64, error)
}

// ErrUnavailable indicates the predictor could not produce an estimate.
// Callers fall back to a neutral score; the error is never fatal.
var ErrUnavailable = errors.New("recall predictor unavailable")

// FeaturesFor derives prediction features from response histories and the
// per-pair counters.
func FeaturesFor(userResults, factResults []bool, countCorrect, countWrong int) Features {
	return Features{
		UserAccuracy: accuracy(userResults),
		FactAccuracy: accuracy(factResults),
		CountCorrect: countCorrect,
		CountWrong:   countWrong,
	}
}

func accuracy(results []bool) float64 {
	if len(results) == 0 {
		return 0
	}
	correct := 0
	for _, r := range results {
		if r {
			correct++
		}
	}
	return float64(correct) / float64(len(results))
}

// WithTimeout wraps a predictor so every call carries a bounded deadline.
// Scheduling must never block indefinitely on a prediction.
func WithTimeout(p Predictor, timeout time.Duration) Predictor {
	return &timeoutPredictor{inner: p, timeout: timeout}
}

type timeoutPredictor struct {
	inner   Predictor
	timeout time.Duration
}

func (t *timeoutPredictor) Predict(ctx context.Context, f Features) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		p   float64
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := t.inner.Predict(ctx, f)
		ch <- result{p, err}
	}()

	select {
	case r := <-ch:
		return r.p, r.err
	case <-ctx.Done():
		return 0, ErrUnavailable
	}
}
