package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Name is the backend name used in config and status output.
const Name = "onnx"

// Metadata is the JSON sidecar stored next to the model as <model>.json.
type Metadata struct {
	InputName   string    `json:"input_name"`
	OutputName  string    `json:"output_name"`
	InputShape  []int64   `json:"input_shape"`
	OutputShape []int64   `json:"output_shape"`
	Classes     []string  `json:"classes"`
	Mean        []float32 `json:"mean,omitempty"`
	Std         []float32 `json:"std,omitempty"`
}

// SidecarPath is where the metadata for a model file is looked up.
func SidecarPath(modelPath string) string { return modelPath + ".json" }

func readMetadata(modelPath string) (Metadata, error) {
	var md Metadata
	if modelPath == "" {
		return md, errors.New("onnx artifacts need a file path to locate metadata")
	}
	b, err := os.ReadFile(SidecarPath(modelPath))
	if err != nil {
		return md, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(b, &md); err != nil {
		return md, fmt.Errorf("parse metadata: %w", err)
	}
	return md, md.validate()
}

func (m *Metadata) validate() error {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if len(m.InputShape) != 4 || m.InputShape[0] != 1 {
		return fmt.Errorf("input_shape must be [1,C,H,W], got %v", m.InputShape)
	}
	if c := m.InputShape[1]; c != 1 && c != 3 {
		return fmt.Errorf("input channels must be 1 or 3, got %d", c)
	}
	if m.InputShape[2] != m.InputShape[3] || m.InputShape[2] <= 0 {
		return fmt.Errorf("input must be square, got %v", m.InputShape)
	}
	if len(m.Classes) == 0 {
		return errors.New("no classes")
	}
	var n int64 = 1
	for _, d := range m.OutputShape {
		n *= d
	}
	if len(m.OutputShape) == 0 || n != int64(len(m.Classes)) {
		return fmt.Errorf("output_shape %v does not match %d classes", m.OutputShape, len(m.Classes))
	}
	c := int(m.InputShape[1])
	if (m.Mean != nil && len(m.Mean) != c) || (m.Std != nil && len(m.Std) != c) {
		return fmt.Errorf("mean/std must have %d values", c)
	}
	for _, s := range m.Std {
		if s == 0 {
			return errors.New("std must be non-zero")
		}
	}
	return nil
}

func (m *Metadata) channels() int  { return int(m.InputShape[1]) }
func (m *Metadata) inputSize() int { return int(m.InputShape[2]) }

// normalize converts a 3-channel CHW tensor in [0,1] into the model's input
// layout, writing into dst.
func (m *Metadata) normalize(rgb []float32, dst []float32) {
	n := m.inputSize() * m.inputSize()
	if m.channels() == 1 {
		for i := 0; i < n; i++ {
			dst[i] = (rgb[i] + rgb[n+i] + rgb[2*n+i]) / 3
		}
	} else {
		copy(dst, rgb[:3*n])
	}
	for c := 0; c < m.channels(); c++ {
		var mean, std float32 = 0, 1
		if m.Mean != nil {
			mean = m.Mean[c]
		}
		if m.Std != nil {
			std = m.Std[c]
		}
		if mean == 0 && std == 1 {
			continue
		}
		for i := c * n; i < (c+1)*n; i++ {
			dst[i] = (dst[i] - mean) / std
		}
	}
}
