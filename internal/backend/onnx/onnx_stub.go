//go:build !onnx

package onnx

import "classifyd/internal/pool"

// Built reports whether this binary links onnxruntime.
const Built = false

// Backend refuses to load models when the binary was built without the
// 'onnx' tag. Load still validates the sidecar so configuration mistakes are
// reported the same way in both builds.
type Backend struct {
	Library string
}

func New(library string) (*Backend, error) { return &Backend{Library: library}, nil }

func (*Backend) Name() string { return Name }

func (*Backend) Load(a *pool.Artifact) (pool.Model, error) {
	if _, err := readMetadata(a.Path); err != nil {
		return nil, err
	}
	return nil, pool.ErrDependencyUnavailable("onnx support not built (missing 'onnx' build tag)")
}
