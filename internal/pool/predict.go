package pool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Predict runs one inference on a handle the caller holds. The handle stays
// held whatever the outcome; the caller still owes a Release.
//
// The first successful call on a handle is its warm-up: the handle is marked
// warmed and the cost of that call is recorded. No later call re-warms it.
func (p *Pool) Predict(ctx context.Context, h *Handle, img InputImage) (PredictionResult, error) {
	if h == nil || h.pool != p {
		return PredictionResult{}, newError(KindHandleNotFound, "predict", nil)
	}
	p.mu.Lock()
	if p.torn {
		p.mu.Unlock()
		return PredictionResult{}, handleError(KindPoolClosed, "predict", h.id, nil)
	}
	if !h.busy {
		p.mu.Unlock()
		return PredictionResult{}, handleError(KindHandleNotFound, "predict", h.id, errors.New("handle is not held"))
	}
	if len(img.Data) == 0 {
		h.failures++
		p.mu.Unlock()
		return PredictionResult{}, handleError(KindInferenceFailed, "predict", h.id, errors.New("empty image buffer"))
	}
	cold := !h.warmed
	h.inflight = true
	p.inflight++
	p.mu.Unlock()

	start := time.Now()
	scores, err := h.session.Predict(ctx, img)
	dur := time.Since(start)

	p.mu.Lock()
	h.inflight = false
	p.inflight--
	teardown := p.finishTeardownLocked(h)
	if err == nil && len(scores) != len(p.labels) {
		err = fmt.Errorf("backend returned %d scores for %d classes", len(scores), len(p.labels))
	}
	if err != nil {
		h.failures++
	}
	p.mu.Unlock()
	if teardown != nil {
		teardown()
	}
	if err != nil {
		return PredictionResult{}, handleError(KindInferenceFailed, "predict", h.id, err)
	}
	idx := argmax(scores)
	res := PredictionResult{
		Label:    p.labels[idx],
		Scores:   append([]float32(nil), scores...),
		Index:    idx,
		Score:    scores[idx],
		HandleID: h.id,
		Cold:     cold,
		Duration: dur,
	}

	p.mu.Lock()
	h.predictions++
	h.lastUsed = time.Now()
	warmedNow := false
	if !h.warmed {
		h.warmed = true
		h.warmedAt = h.lastUsed
		h.warmupDuration = dur
		if wr, ok := h.session.(WarmupReporter); ok {
			h.warmupBytes = wr.WarmupBytes()
		}
		warmedNow = true
	}
	warmupBytes := h.warmupBytes
	p.mu.Unlock()

	p.metrics.predict.WithLabelValues(phaseLabel(cold)).Observe(dur.Seconds())
	if warmedNow {
		p.metrics.warmups.Inc()
		p.log.Debug().Int("handle", h.id).Dur("warmup", dur).Int64("warmup_bytes", warmupBytes).Msg("handle warmed")
		p.publish("handle_warmed", h.id, map[string]any{"duration": dur.String(), "bytes": warmupBytes})
	}
	return res, nil
}

// Warmup pays the first-use cost of every cold handle up front by running img
// through each of them once. It waits for all handles, so it is meant for
// startup before traffic arrives.
func (p *Pool) Warmup(ctx context.Context, img InputImage) error {
	hs, err := p.AcquireAll(ctx)
	if err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	defer p.releaseAll(hs)
	var errs []error
	for _, h := range hs {
		if h.Warmed() {
			continue
		}
		if _, err := p.Predict(ctx, h, img); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// argmax returns the index of the largest score; the first index wins ties.
func argmax(scores []float32) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}
