// Package registry discovers emotion classifier models and Haar cascades in
// a models directory.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emotiond/internal/common/fsutil"
	"emotiond/pkg/types"
)

// Catalog is the result of scanning a models directory.
type Catalog struct {
	Dir      string
	Models   []types.Model
	Cascades []types.Cascade
}

// LoadDir scans dir (non-recursively) for *.onnx classifiers and *.xml
// cascades. IDs are file names including the extension; entries are sorted
// by ID.
func LoadDir(dir string) (*Catalog, error) {
	abs, err := fsutil.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if abs == "" {
		return nil, fmt.Errorf("empty models dir")
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	c := &Catalog{Dir: abs}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		p := filepath.Join(abs, name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".onnx":
			m := types.Model{
				ID:     name,
				Name:   strings.TrimSuffix(name, filepath.Ext(name)),
				Path:   p,
				Format: "onnx",
			}
			if info, err := e.Info(); err == nil {
				m.SizeBytes = info.Size()
			}
			c.Models = append(c.Models, m)
		case ".xml":
			c.Cascades = append(c.Cascades, types.Cascade{ID: name, Path: p})
		}
	}
	sort.Slice(c.Models, func(i, j int) bool { return c.Models[i].ID < c.Models[j].ID })
	sort.Slice(c.Cascades, func(i, j int) bool { return c.Cascades[i].ID < c.Cascades[j].ID })
	return c, nil
}

// List returns a copy of the discovered models.
func (c *Catalog) List() []types.Model {
	if c == nil {
		return nil
	}
	return append([]types.Model(nil), c.Models...)
}

// Model returns the model with the given id. An empty id selects the first
// model.
func (c *Catalog) Model(id string) (types.Model, bool) {
	if c == nil || len(c.Models) == 0 {
		return types.Model{}, false
	}
	if id == "" {
		return c.Models[0], true
	}
	for _, m := range c.Models {
		if m.ID == id || m.Name == id {
			return m, true
		}
	}
	return types.Model{}, false
}

// Cascade returns the cascade with the given id. An empty id prefers the
// OpenCV frontal face default, then the first cascade found.
func (c *Catalog) Cascade(id string) (types.Cascade, bool) {
	if c == nil || len(c.Cascades) == 0 {
		return types.Cascade{}, false
	}
	if id == "" {
		id = DefaultCascade
	}
	for _, cc := range c.Cascades {
		if cc.ID == id {
			return cc, true
		}
	}
	if id == DefaultCascade {
		return c.Cascades[0], true
	}
	return types.Cascade{}, false
}

// DefaultCascade is the stock OpenCV frontal face cascade.
const DefaultCascade = "haarcascade_frontalface_default.xml"
