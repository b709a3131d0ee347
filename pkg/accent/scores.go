package accent

import (
	"fmt"
	"math"

	"github.com/haivivi/accentid/pkg/hub"
)

// distribution turns raw backend scores into probabilities.
func distribution(scores []float32, kind hub.ScoreKind) ([]float64, error) {
	for i, s := range scores {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, fmt.Errorf("%w: score %d is %v", ErrInference, i, s)
		}
	}
	if kind == hub.ScoreProbabilities {
		return renormalize(scores)
	}
	return softmax(scores), nil
}

func softmax(x []float32) []float64 {
	hi := math.Inf(-1)
	for _, v := range x {
		hi = math.Max(hi, float64(v))
	}
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(float64(v) - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func renormalize(p []float32) ([]float64, error) {
	out := make([]float64, len(p))
	var sum float64
	for i, v := range p {
		if v > 0 {
			out[i] = float64(v)
			sum += out[i]
		}
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: all scores are zero", ErrInference)
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}

// argmax returns the first index of the largest value.
func argmax(p []float64) int {
	best := 0
	for i, v := range p {
		if v > p[best] {
			best = i
		}
	}
	return best
}

// normalize returns a zero-mean, unit-variance copy of x, matching the
// wav2vec2 feature extractor.
func normalize(x []float32) []float32 {
	var mean float64
	for _, v := range x {
		mean += float64(v)
	}
	mean /= float64(len(x))
	var variance float64
	for _, v := range x {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(x))
	std := math.Sqrt(variance + 1e-7)
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32((float64(v) - mean) / std)
	}
	return out
}
