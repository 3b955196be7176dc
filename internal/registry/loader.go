// Package registry locates model artifacts on disk.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"classifyd/internal/common/fsutil"
)

// Model is one artifact found in a models directory.
type Model struct {
	// ID is the file name, e.g. "colors.json" or "fer.onnx".
	ID   string
	Path string
	// Backend is inferred from the extension.
	Backend string
	Size    int64
}

// LoadDir scans dir for model artifacts: *.onnx files and *.json centroid
// artifacts. ONNX metadata sidecars (*.onnx.json) are not models.
func LoadDir(dir string) ([]Model, error) {
	abs, err := fsutil.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		var backend string
		switch {
		case strings.HasSuffix(lower, ".onnx.json"):
			continue
		case strings.HasSuffix(lower, ".onnx"):
			backend = "onnx"
		case strings.HasSuffix(lower, ".json"):
			backend = "centroid"
		default:
			continue
		}
		m := Model{ID: name, Path: filepath.Join(abs, name), Backend: backend}
		if fi, err := e.Info(); err == nil {
			m.Size = fi.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve returns the absolute artifact path. An explicit path wins;
// otherwise name is joined onto dir. The file is not required to exist so
// that a missing artifact surfaces as the pool's not-found error.
func Resolve(path, dir, name string) (string, error) {
	if path != "" {
		return fsutil.Resolve(path)
	}
	if name == "" {
		return "", fmt.Errorf("no model configured")
	}
	if filepath.Base(name) != name {
		return "", fmt.Errorf("model name %q must be a file name", name)
	}
	if dir == "" {
		dir = "TFModels"
	}
	base, err := fsutil.Resolve(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, name), nil
}
