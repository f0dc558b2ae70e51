package fact

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EuclideanDistance computes the L2 distance between two vectors.
// Mismatched or empty vectors are treated as maximally distant.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MeanVector averages a set of equal-length vectors. Vectors whose length
// differs from the first are skipped; nil is returned when nothing usable
// remains.
func MeanVector(vectors [][]float32) []float32 {
	var mean []float64
	count := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if mean == nil {
			mean = make([]float64, len(v))
		}
		if len(v) != len(mean) {
			continue
		}
		for i := range v {
			mean[i] += float64(v[i])
		}
		count++
	}
	if count == 0 {
		return nil
	}
	out := make([]float32, len(mean))
	for i := range mean {
		out[i] = float32(mean[i] / float64(count))
	}
	return out
}
