//go:build gocv

package facedetect

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// cascadeBuilt indicates this binary was compiled with OpenCV support.
var cascadeBuilt = true

// gocvCascade wraps an OpenCV Haar cascade. OpenCV classifiers are not safe
// for concurrent detectMultiScale calls, so passes are serialized.
type gocvCascade struct {
	mu sync.Mutex
	cc gocv.CascadeClassifier
}

// LoadCascade loads a Haar cascade XML definition from path.
func LoadCascade(path string) (Cascade, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cascade path is empty")
	}
	cc := gocv.NewCascadeClassifier()
	if !cc.Load(path) {
		_ = cc.Close()
		return nil, fmt.Errorf("load cascade %s: classifier rejected file", path)
	}
	return &gocvCascade{cc: cc}, nil
}

func (c *gocvCascade) DetectMultiScale(img *image.Gray, p CascadeParams) ([]image.Rectangle, error) {
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, fmt.Errorf("gray to mat: %w", err)
	}
	defer mat.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cc.DetectMultiScaleWithParams(mat, p.ScaleFactor, p.MinNeighbors, 0, p.MinSize, p.MaxSize), nil
}

func (c *gocvCascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cc.Close()
}
