package similarity

import (
	"fmt"
	"math"
)

// CosineSimilarity returns the cosine of the angle between a and b in [-1, 1].
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	cos := dot / (na * nb)
	if math.IsNaN(cos) || math.IsInf(cos, 0) {
		return 0, fmt.Errorf("%w: cosine similarity is %v", ErrNonFinite, cos)
	}
	// Rounding can push identical vectors slightly past 1.
	return math.Max(-1, math.Min(1, cos)), nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}
