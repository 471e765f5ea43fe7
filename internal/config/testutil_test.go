package config

import "emotiond/internal/stream"

func streamPatchInterval(n int) stream.ConfigPatch {
	return stream.ConfigPatch{DetectionInterval: &n}
}

func streamPatchConfidence(v float64) stream.ConfigPatch {
	return stream.ConfigPatch{DetectionConfidence: &v}
}
