package inference

import (
	"math"
	"sort"

	"emotiond/pkg/types"
)

// Softmax converts logits into probabilities.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	peak := math.Inf(-1)
	for _, v := range logits {
		peak = math.Max(peak, float64(v))
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Rank labels probs and sorts them by descending score. Ties keep label
// index order. Probabilities without a label are dropped.
func Rank(probs []float64, labels []string) []types.EmotionScore {
	out := make([]types.EmotionScore, 0, len(probs))
	for i, p := range probs {
		if i >= len(labels) {
			break
		}
		out = append(out, types.EmotionScore{Emotion: labels[i], Score: p, Percentage: p * 100})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}
