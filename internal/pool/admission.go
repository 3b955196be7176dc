package pool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// waiter is one blocked Acquire. Release hands a handle over through ch;
// Close closes ch to fail the waiter.
type waiter struct {
	ch chan *Handle
}

// Acquire returns an idle handle and marks it busy. The lowest-numbered idle
// handle is chosen. When none is idle, non-blocking pools fail with
// ErrPoolExhausted and blocking pools queue the caller in FIFO order until a
// handle is released, AcquireTimeout elapses (ErrAcquireTimeout) or ctx is
// done (ctx.Err(), wrapped).
//
// Every successful Acquire must be paired with Release.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	return p.acquire(ctx, p.cfg.AcquireMode == AcquireBlocking)
}

// AcquireAll waits for every handle, regardless of the configured mode. It is
// meant for whole-pool operations (warm-up, the memory probe). On error the
// handles already taken are released.
func (p *Pool) AcquireAll(ctx context.Context) ([]*Handle, error) {
	held := make([]*Handle, 0, len(p.handles))
	for range p.handles {
		h, err := p.acquire(ctx, true)
		if err != nil {
			p.releaseAll(held)
			return nil, err
		}
		held = append(held, h)
	}
	return held, nil
}

// ReleaseAll releases every handle in hs, returning the first error.
func (p *Pool) ReleaseAll(hs []*Handle) error {
	return p.releaseAll(hs)
}

func (p *Pool) releaseAll(hs []*Handle) error {
	var errs []error
	for _, h := range hs {
		if err := p.Release(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) acquire(ctx context.Context, block bool) (*Handle, error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		p.metrics.acquire.WithLabelValues("canceled").Inc()
		return nil, fmt.Errorf("acquire: %w", err)
	}
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.metrics.acquire.WithLabelValues("closed").Inc()
		return nil, newError(KindPoolClosed, "acquire", nil)
	}
	if h := p.takeIdleLocked(); h != nil {
		p.mu.Unlock()
		p.metrics.acquire.WithLabelValues("ok").Inc()
		p.metrics.acquireWait.Observe(0)
		return h, nil
	}
	if !block {
		p.mu.Unlock()
		p.metrics.acquire.WithLabelValues("exhausted").Inc()
		return nil, newError(KindPoolExhausted, "acquire", nil)
	}
	w := &waiter{ch: make(chan *Handle, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case h := <-w.ch:
		if h == nil {
			p.metrics.acquire.WithLabelValues("closed").Inc()
			return nil, newError(KindPoolClosed, "acquire", nil)
		}
		p.metrics.acquire.WithLabelValues("handoff").Inc()
		p.metrics.acquireWait.Observe(time.Since(start).Seconds())
		return h, nil
	case <-ctx.Done():
		p.abandon(w)
		p.metrics.acquire.WithLabelValues("canceled").Inc()
		return nil, fmt.Errorf("acquire: %w", ctx.Err())
	case <-timer.C:
		p.abandon(w)
		p.metrics.acquire.WithLabelValues("timeout").Inc()
		p.publish("acquire_timeout", -1, map[string]any{"timeout": p.cfg.AcquireTimeout.String()})
		return nil, newError(KindAcquireTimeout, "acquire", fmt.Errorf("no handle released within %s", p.cfg.AcquireTimeout))
	}
}

// takeIdleLocked marks the lowest-numbered idle handle busy. Caller holds p.mu.
func (p *Pool) takeIdleLocked() *Handle {
	for _, h := range p.handles {
		if !h.busy {
			h.busy = true
			h.lastUsed = time.Now()
			p.busy++
			p.metrics.busy.Inc()
			return h
		}
	}
	return nil
}

// abandon removes w from the wait queue. If Release already handed w a
// handle, that handle goes straight back to the pool.
func (p *Pool) abandon(w *waiter) {
	p.mu.Lock()
	for i, x := range p.waiters {
		if x == w {
			p.waiters = append(p.waiters[:i:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()
	// Served or failed by Close: the channel is buffered or closed, so this
	// never blocks.
	if h := <-w.ch; h != nil {
		_ = p.Release(h)
	}
}

// Release returns h to the idle set, or hands it to the oldest waiter.
// It fails with ErrHandleNotFound for nil, foreign or unheld handles.
func (p *Pool) Release(h *Handle) error {
	if h == nil || h.pool != p {
		return newError(KindHandleNotFound, "release", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !h.busy {
		return handleError(KindHandleNotFound, "release", h.id, errors.New("handle is not held"))
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = append(p.waiters[:0:0], p.waiters[1:]...)
		h.lastUsed = time.Now()
		w.ch <- h
		return nil
	}
	h.busy = false
	p.busy--
	p.metrics.busy.Dec()
	if p.busy == 0 && p.drained != nil {
		close(p.drained)
		p.drained = nil
	}
	return nil
}
