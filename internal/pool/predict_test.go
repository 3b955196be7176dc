package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPredict_LabelIsArgmax(t *testing.T) {
	p := newTestPool(t, 1, AcquireNonBlocking, newFakeBackend())
	h, _ := p.Acquire(testCtx(t))
	defer p.Release(h)
	res, err := p.Predict(testCtx(t), h, testImage)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.Label != "dog" || res.Index != 1 || res.Score != 0.7 || res.HandleID != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Scores) != 3 {
		t.Fatalf("scores len=%d", len(res.Scores))
	}
}

func TestPredict_TieBreaksOnFirstIndex(t *testing.T) {
	b := newFakeBackend()
	b.scores = []float32{0.2, 0.4, 0.4}
	p := newTestPool(t, 1, AcquireNonBlocking, b)
	h, _ := p.Acquire(testCtx(t))
	defer p.Release(h)
	res, err := p.Predict(testCtx(t), h, testImage)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.Index != 1 || res.Label != "dog" {
		t.Fatalf("expected first max (dog), got %+v", res)
	}
}

func TestArgmax(t *testing.T) {
	cases := []struct {
		in   []float32
		want int
	}{
		{[]float32{1}, 0},
		{[]float32{0, 1, 2}, 2},
		{[]float32{3, 3, 3}, 0},
		{[]float32{0.1, 0.5, 0.2, 0.5}, 1},
		{[]float32{-2, -1, -3}, 1},
	}
	for _, c := range cases {
		if got := argmax(c.in); got != c.want {
			t.Fatalf("argmax(%v)=%d, want %d", c.in, got, c.want)
		}
	}
}

func TestPredict_ScoresLengthConstant(t *testing.T) {
	p := newTestPool(t, 2, AcquireNonBlocking, newFakeBackend())
	for i := 0; i < 5; i++ {
		h, err := p.Acquire(testCtx(t))
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		res, err := p.Predict(testCtx(t), h, testImage)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if len(res.Scores) != len(p.Labels()) {
			t.Fatalf("scores len=%d, classes=%d", len(res.Scores), len(p.Labels()))
		}
		_ = p.Release(h)
	}
}

func TestPredict_WarmsOncePerHandle(t *testing.T) {
	b := newFakeBackend()
	p := newTestPool(t, 2, AcquireNonBlocking, b)
	before := testutil.ToFloat64(warmupsTotal.WithLabelValues(DefaultName))

	hs, err := p.AcquireAll(testCtx(t))
	if err != nil {
		t.Fatalf("AcquireAll: %v", err)
	}
	defer p.ReleaseAll(hs)
	for pass := 0; pass < 3; pass++ {
		for _, h := range hs {
			res, err := p.Predict(testCtx(t), h, testImage)
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if res.Cold != (pass == 0) {
				t.Fatalf("pass %d handle %d: cold=%v", pass, h.ID(), res.Cold)
			}
			if !h.Warmed() {
				t.Fatalf("handle %d not warmed after predict", h.ID())
			}
		}
	}
	if got := b.warmAllocs.Load(); got != 2 {
		t.Fatalf("warm-up allocations=%d, want exactly one per handle", got)
	}
	if got := testutil.ToFloat64(warmupsTotal.WithLabelValues(DefaultName)) - before; got != 2 {
		t.Fatalf("warmups counter delta=%v, want 2", got)
	}
	for _, info := range p.Snapshot().Handles {
		if !info.Warmed || info.WarmupBytes != 4096 || info.Predictions != 3 || info.WarmedAt.IsZero() {
			t.Fatalf("unexpected handle accounting: %+v", info)
		}
	}
}

func TestPredict_EmptyBufferFailsAndHandleReleasable(t *testing.T) {
	b := newFakeBackend()
	p := newTestPool(t, 1, AcquireNonBlocking, b)
	h, _ := p.Acquire(testCtx(t))
	_, err := p.Predict(testCtx(t), h, InputImage{Filename: "empty.png"})
	if !IsInferenceFailed(err) {
		t.Fatalf("expected InferenceFailed, got %v", err)
	}
	if h.Warmed() {
		t.Fatalf("failed predict must not warm the handle")
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("Release after failed predict: %v", err)
	}
	if _, err := p.Acquire(testCtx(t)); err != nil {
		t.Fatalf("handle stranded after failed predict: %v", err)
	}
}

func TestPredict_BackendErrorIsInferenceFailed(t *testing.T) {
	b := newFakeBackend()
	cause := errors.New("malformed image")
	b.predictErr = cause
	p := newTestPool(t, 1, AcquireNonBlocking, b)
	h, _ := p.Acquire(testCtx(t))
	_, err := p.Predict(testCtx(t), h, testImage)
	if !IsInferenceFailed(err) || !errors.Is(err, cause) {
		t.Fatalf("expected InferenceFailed wrapping cause, got %v", err)
	}
	if KindOf(err) != KindInferenceFailed {
		t.Fatalf("KindOf=%v", KindOf(err))
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if info := h.Info(); info.Failures != 1 || info.Busy {
		t.Fatalf("unexpected accounting: %+v", info)
	}
}

func TestPredict_ScoreCountMismatch(t *testing.T) {
	b := newFakeBackend()
	b.scores = []float32{1, 2}
	p := newTestPool(t, 1, AcquireNonBlocking, b)
	h, _ := p.Acquire(testCtx(t))
	defer p.Release(h)
	if _, err := p.Predict(testCtx(t), h, testImage); !IsInferenceFailed(err) {
		t.Fatalf("expected InferenceFailed, got %v", err)
	}
}

func TestPredict_UnheldOrForeignHandle(t *testing.T) {
	p := newTestPool(t, 1, AcquireNonBlocking, newFakeBackend())
	other := newTestPool(t, 1, AcquireNonBlocking, newFakeBackend())

	if _, err := p.Predict(testCtx(t), nil, testImage); !IsHandleNotFound(err) {
		t.Fatalf("nil: %v", err)
	}
	h, _ := p.Acquire(testCtx(t))
	_ = p.Release(h)
	if _, err := p.Predict(testCtx(t), h, testImage); !IsHandleNotFound(err) {
		t.Fatalf("released handle: %v", err)
	}
	oh, _ := other.Acquire(testCtx(t))
	defer other.Release(oh)
	if _, err := p.Predict(testCtx(t), oh, testImage); !IsHandleNotFound(err) {
		t.Fatalf("foreign handle: %v", err)
	}
}

func TestPredict_ContextCancelSurfaces(t *testing.T) {
	b := newFakeBackend()
	b.block = make(chan struct{})
	p := newTestPool(t, 1, AcquireNonBlocking, b)
	h, _ := p.Acquire(testCtx(t))
	defer p.Release(h)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Predict(ctx, h, testImage)
	if !IsInferenceFailed(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected InferenceFailed wrapping deadline, got %v", err)
	}
}

func TestWarmup_WarmsEveryHandle(t *testing.T) {
	b := newFakeBackend()
	p := newTestPool(t, 3, AcquireNonBlocking, b)
	if err := p.Warmup(testCtx(t), testImage); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	s := p.Snapshot()
	if s.Warmed != 3 || s.Idle != 3 {
		t.Fatalf("unexpected snapshot after warmup: %+v", s)
	}
	// Second warmup is a no-op for already warmed handles.
	if err := p.Warmup(testCtx(t), testImage); err != nil {
		t.Fatalf("Warmup again: %v", err)
	}
	if got := b.warmAllocs.Load(); got != 3 {
		t.Fatalf("warm allocations=%d", got)
	}
	for _, info := range p.Snapshot().Handles {
		if info.Predictions != 1 {
			t.Fatalf("handle %d predicted %d times", info.ID, info.Predictions)
		}
	}
}

func TestWarmup_ReportsFailures(t *testing.T) {
	b := newFakeBackend()
	b.predictErr = errors.New("no")
	p := newTestPool(t, 2, AcquireNonBlocking, b)
	if err := p.Warmup(testCtx(t), testImage); !IsInferenceFailed(err) {
		t.Fatalf("expected InferenceFailed, got %v", err)
	}
	if s := p.Snapshot(); s.Idle != 2 {
		t.Fatalf("warmup left handles held: %+v", s)
	}
}
