// Package backend maps configured backend names to pool.Backend
// implementations.
package backend

import (
	"fmt"
	"sort"
	"strings"

	"classifyd/internal/backend/centroid"
	"classifyd/internal/backend/onnx"
	"classifyd/internal/pool"
)

// Options carries backend-specific settings from configuration.
type Options struct {
	// ORTLibrary is the onnxruntime shared library path.
	ORTLibrary string
}

type factory func(Options) (pool.Backend, error)

var factories = map[string]factory{
	centroid.Name: func(Options) (pool.Backend, error) { return centroid.New(), nil },
	onnx.Name: func(o Options) (pool.Backend, error) {
		return onnx.New(o.ORTLibrary)
	},
}

// New returns the backend registered under name. Names are case-insensitive.
func New(name string, opts Options) (pool.Backend, error) {
	f, ok := factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return f(opts)
}

// Names lists registered backends in sorted order.
func Names() []string {
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ByExtension guesses a backend from a model file name: .onnx files use the
// onnx backend, everything else centroid.
func ByExtension(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".onnx") {
		return onnx.Name
	}
	return centroid.Name
}
