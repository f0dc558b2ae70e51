package predict

import (
	"context"
	"math"
)

// Feature normalization statistics exported from the trained retention
// model: user accuracy, fact accuracy, count correct, count wrong, bias.
var (
	featureMean = [5]float64{0.62840253, 0.6284026, 0.07828305, 0.04504214, 0}
	featureStd  = [5]float64{0.16344075, 0.21432154, 0.15107092, 0.08828004, 1}
)

// Logistic coefficients approximating the retention network on the same
// normalized features. Positive history pushes recall up, prior failures
// push it down.
var empiricalWeights = [5]float64{0.9, 0.7, 0.6, -0.8, 0.35}

// Empirical is a deterministic in-process recall model. It stands in for
// the external prediction service so the engine keeps working when that
// service is absent, and it anchors replay determinism in tests.
type Empirical struct{}

// NewEmpirical creates the in-process recall model.
func NewEmpirical() *Empirical {
	return &Empirical{}
}

// Predict returns a recall probability from a logistic combination of the
// normalized features.
func (e *Empirical) Predict(_ context.Context, f Features) (float64, error) {
	raw := [5]float64{
		f.UserAccuracy,
		f.FactAccuracy,
		float64(f.CountCorrect),
		float64(f.CountWrong),
		1, // bias
	}
	z := 0.0
	for i := range raw {
		z += empiricalWeights[i] * (raw[i] - featureMean[i]) / featureStd[i]
	}
	return 1 / (1 + math.Exp(-z)), nil
}
