package fact

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched length", []float32{1, 0}, []float32{1}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEuclideanDistance(t *testing.T) {
	if d := EuclideanDistance([]float32{0, 0}, []float32{3, 4}); math.Abs(d-5) > 1e-9 {
		t.Errorf("EuclideanDistance() = %v, want 5", d)
	}
	if d := EuclideanDistance(nil, []float32{1}); !math.IsInf(d, 1) {
		t.Errorf("EuclideanDistance(nil, v) = %v, want +Inf", d)
	}
}

func TestMeanVector(t *testing.T) {
	mean := MeanVector([][]float32{{1, 2}, {3, 4}})
	if len(mean) != 2 || mean[0] != 2 || mean[1] != 3 {
		t.Fatalf("MeanVector() = %v, want [2 3]", mean)
	}
	if MeanVector(nil) != nil {
		t.Fatal("MeanVector(nil) should be nil")
	}
	// Mismatched lengths are skipped rather than corrupting the mean.
	mean = MeanVector([][]float32{{1, 1}, {5}, {3, 3}})
	if len(mean) != 2 || mean[0] != 2 || mean[1] != 2 {
		t.Fatalf("MeanVector() = %v, want [2 2]", mean)
	}
}
