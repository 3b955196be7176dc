// Package centroid is a pure-Go classifier backend. An artifact stores one
// mean input tensor per class; an image scores each class by a softmax over
// its negative mean squared distance to the class centroid.
package centroid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"classifyd/internal/imageio"
	"classifyd/internal/pool"
)

// Format is the value of the artifact's "format" field.
const Format = "centroid/v1"

// Name is the backend name used in config and status output.
const Name = "centroid"

// Class is one labelled centroid. Centroid has 3*InputSize*InputSize values
// in CHW order.
type Class struct {
	Label    string    `json:"label"`
	Centroid []float32 `json:"centroid"`
}

type artifact struct {
	Format      string  `json:"format"`
	InputSize   int     `json:"input_size"`
	Temperature float64 `json:"temperature,omitempty"`
	Classes     []Class `json:"classes"`
}

// Marshal encodes an artifact. It applies the same validation Load does.
func Marshal(inputSize int, temperature float64, classes []Class) ([]byte, error) {
	a := artifact{Format: Format, InputSize: inputSize, Temperature: temperature, Classes: classes}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

func (a *artifact) validate() error {
	if a.Format != Format {
		return fmt.Errorf("unsupported format %q", a.Format)
	}
	if a.InputSize <= 0 || a.InputSize > 1024 {
		return fmt.Errorf("input_size %d out of range", a.InputSize)
	}
	if a.Temperature < 0 || math.IsNaN(a.Temperature) || math.IsInf(a.Temperature, 0) {
		return fmt.Errorf("invalid temperature %v", a.Temperature)
	}
	if len(a.Classes) == 0 {
		return errors.New("no classes")
	}
	want := imageio.TensorLen(a.InputSize)
	seen := make(map[string]struct{}, len(a.Classes))
	for i, c := range a.Classes {
		if c.Label == "" {
			return fmt.Errorf("class %d has no label", i)
		}
		if _, dup := seen[c.Label]; dup {
			return fmt.Errorf("duplicate label %q", c.Label)
		}
		seen[c.Label] = struct{}{}
		if len(c.Centroid) != want {
			return fmt.Errorf("class %q centroid has %d values, want %d", c.Label, len(c.Centroid), want)
		}
	}
	return nil
}

// Backend implements pool.Backend.
type Backend struct{}

// New returns the centroid backend.
func New() *Backend { return &Backend{} }

func (*Backend) Name() string { return Name }

// Load parses and validates the artifact JSON.
func (*Backend) Load(a *pool.Artifact) (pool.Model, error) {
	dec := json.NewDecoder(bytes.NewReader(a.Data))
	dec.DisallowUnknownFields()
	var art artifact
	if err := dec.Decode(&art); err != nil {
		return nil, fmt.Errorf("parse centroid artifact: %w", err)
	}
	if err := art.validate(); err != nil {
		return nil, fmt.Errorf("centroid artifact: %w", err)
	}
	if art.Temperature == 0 {
		art.Temperature = 1
	}
	labels := make([]string, len(art.Classes))
	for i, c := range art.Classes {
		labels[i] = c.Label
	}
	return &model{art: art, labels: labels}, nil
}

type model struct {
	art    artifact
	labels []string
}

func (m *model) Labels() []string { return m.labels }

func (m *model) NewSession() (pool.Session, error) { return &session{m: m}, nil }

func (m *model) Close() error { return nil }

// session owns a feature buffer. It is allocated on the first Predict, which
// is what makes a fresh session cold.
type session struct {
	m      *model
	buf    []float32
	warmup int64
	closed bool
}

func (s *session) Predict(ctx context.Context, in pool.InputImage) ([]float32, error) {
	if s.closed {
		return nil, errors.New("session closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, _, err := imageio.Decode(in.Data)
	if err != nil {
		return nil, err
	}
	size := s.m.art.InputSize
	if s.buf == nil {
		s.buf = make([]float32, imageio.TensorLen(size))
		s.warmup = int64(len(s.buf)) * 4
	}
	s.buf = imageio.Tensor(img, size, s.buf)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return score(s.buf, s.m.art.Classes, s.m.art.Temperature), nil
}

func (s *session) WarmupBytes() int64 { return s.warmup }

func (s *session) Close() error {
	s.closed = true
	s.buf = nil
	return nil
}

// score computes softmax(-mse/T) across classes in float64.
func score(x []float32, classes []Class, temp float64) []float32 {
	logits := make([]float64, len(classes))
	maxLogit := math.Inf(-1)
	for i, c := range classes {
		var sum float64
		for j, v := range c.Centroid {
			d := float64(x[j]) - float64(v)
			sum += d * d
		}
		logits[i] = -(sum / float64(len(x))) / temp
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	var total float64
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		total += logits[i]
	}
	out := make([]float32, len(logits))
	for i := range logits {
		out[i] = float32(logits[i] / total)
	}
	return out
}
