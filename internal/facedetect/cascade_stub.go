//go:build !gocv

package facedetect

// This file provides a CGO-free stub for the cascade backend. It is compiled
// when the 'gocv' build tag is NOT set; the real backend lives in
// cascade_gocv.go.

// cascadeBuilt indicates this binary was compiled without OpenCV support.
var cascadeBuilt = false

// LoadCascade refuses to load without the 'gocv' build tag.
func LoadCascade(path string) (Cascade, error) {
	return nil, ErrBackendUnavailable("opencv cascade support not built (missing 'gocv' build tag)")
}
