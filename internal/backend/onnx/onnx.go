//go:build onnx

package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"classifyd/internal/imageio"
	"classifyd/internal/pool"
)

// Built reports whether this binary links onnxruntime.
const Built = true

// The runtime environment is process-wide; pools share it by refcount.
var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnv(lib string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return pool.ErrDependencyUnavailable(fmt.Sprintf("initialize onnxruntime: %v", err))
		}
	}
	envRefs++
	return nil
}

func releaseEnv() error {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

// Backend implements pool.Backend on onnxruntime.
type Backend struct {
	Library string // path to libonnxruntime; empty uses the loader default
}

// New returns the onnx backend.
func New(library string) (*Backend, error) { return &Backend{Library: library}, nil }

func (*Backend) Name() string { return Name }

// Load reads the sidecar metadata and keeps the model bytes; sessions are
// built from them without touching the file again.
func (b *Backend) Load(a *pool.Artifact) (pool.Model, error) {
	md, err := readMetadata(a.Path)
	if err != nil {
		return nil, err
	}
	if err := acquireEnv(b.Library); err != nil {
		return nil, err
	}
	return &model{md: md, data: a.Data}, nil
}

type model struct {
	md   Metadata
	data []byte
}

func (m *model) Labels() []string { return m.md.Classes }

func (m *model) NewSession() (pool.Session, error) {
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(m.md.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(m.md.OutputShape...))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	s, err := ort.NewAdvancedSessionWithONNXData(m.data,
		[]string{m.md.InputName}, []string{m.md.OutputName},
		[]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out}, nil)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &session{md: &m.md, s: s, in: in, out: out}, nil
}

func (m *model) Close() error { return releaseEnv() }

type session struct {
	md  *Metadata
	s   *ort.AdvancedSession
	in  *ort.Tensor[float32]
	out *ort.Tensor[float32]
	rgb []float32
}

func (s *session) Predict(ctx context.Context, img pool.InputImage) ([]float32, error) {
	decoded, _, err := imageio.Decode(img.Data)
	if err != nil {
		return nil, err
	}
	s.rgb = imageio.Tensor(decoded, s.md.inputSize(), s.rgb)
	s.md.normalize(s.rgb, s.in.GetData())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.s.Run(); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	scores := make([]float32, len(s.md.Classes))
	copy(scores, s.out.GetData())
	return scores, nil
}

func (s *session) Close() error {
	err := s.s.Destroy()
	s.in.Destroy()
	s.out.Destroy()
	return err
}
