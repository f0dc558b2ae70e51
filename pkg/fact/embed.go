package fact

import (
	"hash/fnv"
	"math"
	"strings"
)

// DefaultEmbeddingDim is the dimension used for derived embeddings.
const DefaultEmbeddingDim = 64

// DeriveEmbedding produces a deterministic hashed bag-of-words vector for a
// piece of text. It is used when a fact arrives without precomputed
// embeddings so the similarity factors stay meaningful; the result is fixed
// at creation time like any other content-derived vector.
func DeriveEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	vec := make([]float32, dim)
	for _, token := range Tokens(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		idx := int(sum % uint32(dim))
		// Alternate sign by a second hash bit to spread mass around zero.
		if sum&0x80000000 != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	// L2 normalize so cosine similarity is scale free.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec
}

// Tokens lowercases and splits text into alphanumeric tokens, dropping
// single-character noise. Shared by embedding derivation and the answer
// near-duplicate check.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
