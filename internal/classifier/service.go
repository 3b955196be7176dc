// Package classifier is the service behind the HTTP API: it owns the engine
// pool, converts pool results into API payloads, and runs the warm-up probe.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"classifyd/internal/imageio"
	"classifyd/internal/ledger"
	"classifyd/internal/pool"
	"classifyd/pkg/types"
)

// Options configures a Service.
type Options struct {
	// Pool is used as-is for the serving pool and again for every probe run.
	Pool pool.Config
	// WarmupImage, when set, is predicted on every handle before New returns.
	WarmupImage string
	// TestImage is the image used by Probe.
	TestImage   string
	ProbePasses int
	// Ledger, when set, records every probe run.
	Ledger *ledger.Ledger
	Logger *zerolog.Logger
}

// Service implements httpapi.Service.
type Service struct {
	opts    Options
	pool    *pool.Pool
	log     zerolog.Logger
	started time.Time
}

// New creates the pool and, if configured, warms every handle.
func New(ctx context.Context, opts Options) (*Service, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	if opts.Pool.Logger == nil {
		opts.Pool.Logger = &log
	}
	p, err := pool.Create(opts.Pool)
	if err != nil {
		return nil, err
	}
	s := &Service{opts: opts, pool: p, log: log.With().Str("component", "classifier").Logger(), started: time.Now()}
	if opts.WarmupImage != "" {
		img, err := imageio.LoadFile(opts.WarmupImage, "")
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("warm-up image: %w", err)
		}
		start := time.Now()
		if err := p.Warmup(ctx, img); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("warm-up: %w", err)
		}
		s.log.Info().Int("handles", p.Size()).Dur("dur", time.Since(start)).Msg("pool warmed")
	}
	return s, nil
}

// Pool exposes the serving pool.
func (s *Service) Pool() *pool.Pool { return s.pool }

// Ready is true until Close.
func (s *Service) Ready() bool { return !s.pool.Snapshot().Closed }

// Predict acquires a handle, classifies img and releases the handle.
func (s *Service) Predict(ctx context.Context, img pool.InputImage) (types.PredictResponse, error) {
	h, err := s.pool.Acquire(ctx)
	if err != nil {
		return types.PredictResponse{}, err
	}
	defer func() {
		if err := s.pool.Release(h); err != nil {
			s.log.Error().Err(err).Int("handle", h.ID()).Msg("release failed")
		}
	}()
	res, err := s.pool.Predict(ctx, h, img)
	if err != nil {
		return types.PredictResponse{}, err
	}
	return types.PredictResponse{
		Label:         res.Label,
		Score:         res.Score,
		Index:         res.Index,
		Scores:        res.Scores,
		Labels:        s.pool.Labels(),
		Handle:        res.HandleID,
		Cold:          res.Cold,
		DurationMS:    res.Duration.Milliseconds(),
		Filename:      img.Filename,
		ExpectedLabel: img.Label,
	}, nil
}

// Close closes the serving pool.
func (s *Service) Close() error { return s.pool.Close() }
