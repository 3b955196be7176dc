package pool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBackend is a lightweight in-memory backend used for tests. The artifact
// content is ignored unless it equals "corrupt".
type fakeBackend struct {
	labels  []string
	scores  []float32
	loadErr error
	// sessionErrAt fails NewSession for that ordinal (-1 disables).
	sessionErrAt int
	predictErr   error
	// block, when set, makes Predict wait until it is closed.
	block chan struct{}

	loads         atomic.Int32
	sessions      atomic.Int32
	sessionCloses atomic.Int32
	modelCloses   atomic.Int32
	warmAllocs    atomic.Int32
	inflight      atomic.Int32
	maxInflight   atomic.Int32
	// closedActive counts session closes that ran during that session's Predict.
	closedActive atomic.Int32

	mu   sync.Mutex
	seen []*fakeSession
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		labels:       []string{"cat", "dog", "bird"},
		scores:       []float32{0.1, 0.7, 0.2},
		sessionErrAt: -1,
	}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Load(a *Artifact) (Model, error) {
	b.loads.Add(1)
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	if string(a.Data) == "corrupt" {
		return nil, errors.New("bad magic")
	}
	return &fakeModel{b: b}, nil
}

type fakeModel struct{ b *fakeBackend }

func (m *fakeModel) Labels() []string { return m.b.labels }

func (m *fakeModel) NewSession() (Session, error) {
	n := int(m.b.sessions.Add(1)) - 1
	if n == m.b.sessionErrAt {
		return nil, errors.New("out of device memory")
	}
	s := &fakeSession{b: m.b}
	m.b.mu.Lock()
	m.b.seen = append(m.b.seen, s)
	m.b.mu.Unlock()
	return s, nil
}

func (m *fakeModel) Close() error {
	m.b.modelCloses.Add(1)
	return nil
}

type fakeSession struct {
	b      *fakeBackend
	buf    []byte
	closes atomic.Int32
	active atomic.Int32
}

func (s *fakeSession) Predict(ctx context.Context, img InputImage) ([]float32, error) {
	s.active.Add(1)
	defer s.active.Add(-1)
	n := s.b.inflight.Add(1)
	defer s.b.inflight.Add(-1)
	for {
		m := s.b.maxInflight.Load()
		if n <= m || s.b.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if s.b.block != nil {
		select {
		case <-s.b.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.b.predictErr != nil {
		return nil, s.b.predictErr
	}
	if s.buf == nil {
		s.buf = make([]byte, 4096)
		s.b.warmAllocs.Add(1)
	}
	return append([]float32(nil), s.b.scores...), nil
}

func (s *fakeSession) WarmupBytes() int64 { return int64(len(s.buf)) }

func (s *fakeSession) Close() error {
	if s.active.Load() > 0 {
		s.b.closedActive.Add(1)
	}
	s.closes.Add(1)
	s.b.sessionCloses.Add(1)
	return nil
}

// writeArtifact writes a non-empty model file and returns its path.
func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return p
}

// newTestPool creates a pool over a fake backend and closes it on cleanup.
func newTestPool(t *testing.T, size int, mode AcquireMode, b *fakeBackend) *Pool {
	t.Helper()
	p, err := Create(Config{
		PoolSize:       size,
		ModelPath:      writeArtifact(t, "weights"),
		Backend:        b,
		AcquireMode:    mode,
		AcquireTimeout: 50 * time.Millisecond,
		DrainTimeout:   50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

var testImage = InputImage{Data: []byte("pixels"), Filename: "image.jpg"}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
