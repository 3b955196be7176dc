package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAcquire_NonBlockingExhaustsAtSizeOne(t *testing.T) {
	p := newTestPool(t, 1, AcquireNonBlocking, newFakeBackend())
	h, err := p.Acquire(testCtx(t))
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := p.Acquire(testCtx(t)); !IsPoolExhausted(err) {
			t.Fatalf("expected PoolExhausted, got %v", err)
		}
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	h2, err := p.Acquire(testCtx(t))
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if h2 != h {
		t.Fatalf("expected the released handle back")
	}
	if _, err := p.Acquire(testCtx(t)); !IsPoolExhausted(err) {
		t.Fatalf("expected PoolExhausted after exactly one more acquire, got %v", err)
	}
}

func TestAcquire_SizeThreeScenario(t *testing.T) {
	p := newTestPool(t, 3, AcquireNonBlocking, newFakeBackend())
	var held []*Handle
	for i := 0; i < 3; i++ {
		h, err := p.Acquire(testCtx(t))
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if h.ID() != i {
			t.Fatalf("Acquire %d returned handle %d", i, h.ID())
		}
		held = append(held, h)
	}
	if _, err := p.Acquire(testCtx(t)); !IsPoolExhausted(err) {
		t.Fatalf("fourth Acquire: expected PoolExhausted, got %v", err)
	}
	if err := p.Release(held[0]); err != nil {
		t.Fatalf("Release: %v", err)
	}
	h, err := p.Acquire(testCtx(t))
	if err != nil {
		t.Fatalf("fourth Acquire after release: %v", err)
	}
	if h.ID() != 0 {
		t.Fatalf("expected handle#0, got %d", h.ID())
	}
}

func TestAcquire_BlockingTimesOut(t *testing.T) {
	p := newTestPool(t, 1, AcquireBlocking, newFakeBackend())
	h, err := p.Acquire(testCtx(t))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release(h)

	start := time.Now()
	_, err = p.Acquire(testCtx(t))
	elapsed := time.Since(start)
	if !IsAcquireTimeout(err) {
		t.Fatalf("expected AcquireTimeout, got %v", err)
	}
	if elapsed < 45*time.Millisecond {
		t.Fatalf("returned too early: %s", elapsed)
	}
	if elapsed > time.Second {
		t.Fatalf("returned too late: %s", elapsed)
	}
	if s := p.Snapshot(); s.Waiters != 0 {
		t.Fatalf("timed out waiter still queued: %d", s.Waiters)
	}
}

func TestAcquire_BlockingServedByRelease(t *testing.T) {
	b := newFakeBackend()
	p, err := Create(Config{
		PoolSize:       1,
		ModelPath:      writeArtifact(t, "w"),
		Backend:        b,
		AcquireMode:    AcquireBlocking,
		AcquireTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()
	h, _ := p.Acquire(testCtx(t))

	got := make(chan *Handle, 1)
	go func() {
		h2, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("blocked Acquire: %v", err)
		}
		got <- h2
	}()
	waitFor(t, func() bool { return p.Snapshot().Waiters == 1 })
	if err := p.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	select {
	case h2 := <-got:
		if h2 != h {
			t.Fatalf("expected hand-off of handle %d", h.ID())
		}
		if s := p.Snapshot(); s.Busy != 1 || s.Waiters != 0 {
			t.Fatalf("hand-off accounting wrong: %+v", s)
		}
		_ = p.Release(h2)
	case <-time.After(time.Second):
		t.Fatal("waiter not served")
	}
}

func TestAcquire_FIFOOrder(t *testing.T) {
	p, err := Create(Config{
		PoolSize:       1,
		ModelPath:      writeArtifact(t, "w"),
		Backend:        newFakeBackend(),
		AcquireMode:    AcquireBlocking,
		AcquireTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()
	h, _ := p.Acquire(testCtx(t))

	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			h, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("waiter %d: %v", i, err)
				return
			}
			order <- i
			_ = p.Release(h)
		}()
		waitFor(t, func() bool { return p.Snapshot().Waiters == i+1 })
	}
	_ = p.Release(h)
	for want := 0; want < 3; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("served waiter %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("waiters not served")
		}
	}
}

func TestAcquire_CancelRemovesWaiter(t *testing.T) {
	p, err := Create(Config{
		PoolSize:       1,
		ModelPath:      writeArtifact(t, "w"),
		Backend:        newFakeBackend(),
		AcquireMode:    AcquireBlocking,
		AcquireTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()
	h, _ := p.Acquire(testCtx(t))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errc <- err
	}()
	waitFor(t, func() bool { return p.Snapshot().Waiters == 1 })
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled Acquire did not return")
	}
	if s := p.Snapshot(); s.Waiters != 0 || s.Busy != 1 {
		t.Fatalf("cancel left side effects: %+v", s)
	}
	// The release goes back to idle, not to the abandoned waiter.
	_ = p.Release(h)
	if s := p.Snapshot(); s.Idle != 1 {
		t.Fatalf("expected idle handle after release: %+v", s)
	}
}

func TestAcquire_CanceledContextFailsFast(t *testing.T) {
	p := newTestPool(t, 1, AcquireNonBlocking, newFakeBackend())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s := p.Snapshot(); s.Busy != 0 {
		t.Fatalf("canceled acquire took a handle")
	}
}

func TestAbandon_ReturnsHandedOffHandle(t *testing.T) {
	p := newTestPool(t, 1, AcquireBlocking, newFakeBackend())
	h, _ := p.Acquire(testCtx(t))
	w := &waiter{ch: make(chan *Handle, 1)}
	p.mu.Lock()
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()
	// Release hands h to w; w then gives up before reading.
	if err := p.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	p.abandon(w)
	if s := p.Snapshot(); s.Busy != 0 || s.Idle != 1 {
		t.Fatalf("handed-off handle stranded: %+v", s)
	}
}

func TestRelease_Errors(t *testing.T) {
	p := newTestPool(t, 1, AcquireNonBlocking, newFakeBackend())
	other := newTestPool(t, 1, AcquireNonBlocking, newFakeBackend())

	if err := p.Release(nil); !IsHandleNotFound(err) {
		t.Fatalf("nil handle: %v", err)
	}
	foreign, _ := other.Acquire(testCtx(t))
	if err := p.Release(foreign); !IsHandleNotFound(err) {
		t.Fatalf("foreign handle: %v", err)
	}
	h, _ := p.Acquire(testCtx(t))
	if err := p.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := p.Release(h); !IsHandleNotFound(err) {
		t.Fatalf("double release: %v", err)
	}
}

func TestAcquire_ConcurrentNoDoubleIssue(t *testing.T) {
	b := newFakeBackend()
	p, err := Create(Config{
		PoolSize:       3,
		ModelPath:      writeArtifact(t, "w"),
		Backend:        b,
		AcquireMode:    AcquireBlocking,
		AcquireTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	var mu sync.Mutex
	holders := map[int]int{}
	var wg sync.WaitGroup
	for g := 0; g < 12; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				h, err := p.Acquire(context.Background())
				if err != nil {
					t.Errorf("Acquire: %v", err)
					return
				}
				mu.Lock()
				holders[h.ID()]++
				if holders[h.ID()] > 1 {
					t.Errorf("handle %d issued twice", h.ID())
				}
				mu.Unlock()
				if _, err := p.Predict(context.Background(), h, testImage); err != nil {
					t.Errorf("Predict: %v", err)
				}
				mu.Lock()
				holders[h.ID()]--
				mu.Unlock()
				if err := p.Release(h); err != nil {
					t.Errorf("Release: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	s := p.Snapshot()
	if s.Busy != 0 || s.Idle != 3 || s.Waiters != 0 {
		t.Fatalf("unbalanced after stress: %+v", s)
	}
	if got := b.maxInflight.Load(); got > 3 {
		t.Fatalf("more concurrent predicts (%d) than handles", got)
	}
}

func TestAcquireAll_TakesEveryHandle(t *testing.T) {
	p := newTestPool(t, 3, AcquireNonBlocking, newFakeBackend())
	hs, err := p.AcquireAll(testCtx(t))
	if err != nil {
		t.Fatalf("AcquireAll: %v", err)
	}
	if len(hs) != 3 {
		t.Fatalf("got %d handles", len(hs))
	}
	if _, err := p.Acquire(testCtx(t)); !IsPoolExhausted(err) {
		t.Fatalf("expected exhaustion while all held, got %v", err)
	}
	if err := p.ReleaseAll(hs); err != nil {
		t.Fatalf("ReleaseAll: %v", err)
	}
	if s := p.Snapshot(); s.Idle != 3 {
		t.Fatalf("idle=%d", s.Idle)
	}
}

func TestAcquireAll_TimeoutReleasesPartial(t *testing.T) {
	p := newTestPool(t, 2, AcquireNonBlocking, newFakeBackend())
	h, _ := p.Acquire(testCtx(t))
	defer p.Release(h)
	if _, err := p.AcquireAll(testCtx(t)); !IsAcquireTimeout(err) {
		t.Fatalf("expected AcquireTimeout, got %v", err)
	}
	if s := p.Snapshot(); s.Busy != 1 {
		t.Fatalf("partial acquisition leaked: busy=%d", s.Busy)
	}
}

// waitFor polls cond until it holds or the test deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}
