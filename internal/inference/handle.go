package inference

import (
	"context"
	"fmt"
	"image"

	"emotiond/pkg/types"
)

// Handle classifies face crops with a shared Backend. It is immutable once
// built and safe for concurrent use.
type Handle struct {
	backend Backend
	labels  []string
	width   int
	height  int
}

func newHandle(b Backend) *Handle {
	labels := b.Labels()
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	w, h := b.InputSize()
	return &Handle{backend: b, labels: append([]string(nil), labels...), width: w, height: h}
}

// Labels returns the class names used for ranking.
func (h *Handle) Labels() []string { return append([]string(nil), h.labels...) }

// Classify ranks emotions for each crop with a single batched forward pass.
// The i-th result belongs to crops[i] and is sorted by descending score.
func (h *Handle) Classify(ctx context.Context, crops []image.Image) ([][]types.EmotionScore, error) {
	if len(crops) == 0 {
		return nil, nil
	}
	batch := Tensor(crops, h.width, h.height)
	rows, err := h.backend.Forward(ctx, batch, len(crops))
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	if len(rows) != len(crops) {
		return nil, shapeError{what: "batch size", want: len(crops), got: len(rows)}
	}
	out := make([][]types.EmotionScore, len(rows))
	for i, logits := range rows {
		out[i] = Rank(Softmax(logits), h.labels)
	}
	return out, nil
}
