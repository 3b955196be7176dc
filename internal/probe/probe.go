// Package probe reproduces the engine warm-up measurement: build a pool,
// run every handle a few times on one image and record process memory after
// each step. A healthy backend grows memory on a handle's first prediction
// only.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"classifyd/internal/memstat"
	"classifyd/internal/pool"
)

// DefaultTolerance is the per-step growth below which later passes are
// treated as flat. RSS moves by a few pages even when nothing is allocated.
const DefaultTolerance = 1 << 20

// Options tunes a probe run. Zero values pick defaults.
type Options struct {
	Passes    int // default 2
	Sampler   memstat.Sampler
	Tolerance int64
	Logger    *zerolog.Logger
}

// Step is one measured point.
type Step struct {
	Phase    string         `json:"phase"` // baseline, load, create, predict
	Pass     int            `json:"pass,omitempty"`
	Handle   int            `json:"handle"`
	Label    string         `json:"label,omitempty"`
	Score    float32        `json:"score,omitempty"`
	Cold     bool           `json:"cold,omitempty"`
	Duration time.Duration  `json:"duration_ns,omitempty"`
	Memory   memstat.Sample `json:"memory"`
	Delta    int64          `json:"delta_bytes"`
}

// HandleGrowth sums memory deltas observed around one handle's predictions.
type HandleGrowth struct {
	Handle      int   `json:"handle"`
	FirstCall   int64 `json:"first_call_bytes"`
	LaterCalls  int64 `json:"later_calls_bytes"`
	WarmupBytes int64 `json:"warmup_bytes"`
}

// Report is the outcome of one Run.
type Report struct {
	RunID        string         `json:"run_id"`
	Backend      string         `json:"backend"`
	ArtifactPath string         `json:"artifact_path"`
	PoolSize     int            `json:"pool_size"`
	Passes       int            `json:"passes"`
	Image        string         `json:"image"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Steps        []Step         `json:"steps"`
	Handles      []HandleGrowth `json:"handles"`
	Final        memstat.Sample `json:"final"`
	// RepeatedGrowth is set when any handle grew by more than the tolerance
	// on a call after its first.
	RepeatedGrowth bool `json:"repeated_growth"`
}

// Summary is the one-line result message.
func (r *Report) Summary() string {
	return fmt.Sprintf("The test is finished. :). Total memory consumption: %s", memstat.GB(r.Final.Bytes()))
}

// MetricsName labels the pool metrics of probe runs so they stay apart from
// the serving pool's.
const MetricsName = "probe"

// Run creates a pool from cfg, predicts img on every handle opts.Passes
// times in handle order, and closes the pool. Memory is sampled after each
// engine is loaded and after each prediction. Pool errors are returned
// unchanged so callers can map them.
func Run(ctx context.Context, cfg pool.Config, img pool.InputImage, opts Options) (_ *Report, err error) {
	if opts.Passes <= 0 {
		opts.Passes = 2
	}
	if opts.Sampler == nil {
		opts.Sampler = memstat.Read
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "probe").Logger()
	}
	if cfg.Logger == nil {
		cfg.Logger = &log
	}
	cfg.Name = MetricsName

	r := &Report{
		RunID:     uuid.New().String(),
		PoolSize:  cfg.PoolSize,
		Passes:    opts.Passes,
		Image:     img.Filename,
		StartedAt: time.Now(),
	}
	prev := opts.Sampler()
	r.add(Step{Phase: "baseline", Handle: -1, Memory: prev}, &prev)
	log.Info().Str("run_id", r.RunID).Str("memory", memstat.GB(prev.Bytes())).Msg("memory before loading engines")

	cfg.OnSession = func(handle int) {
		cur := opts.Sampler()
		r.add(Step{Phase: "load", Handle: handle, Memory: cur}, &prev)
		log.Debug().Int("handle", handle).Str("memory", memstat.GB(cur.Bytes())).Msg("memory after loading engine")
	}
	p, err := pool.Create(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close probe pool: %w", cerr)
		}
	}()
	r.Backend = cfg.Backend.Name()
	r.ArtifactPath = p.Artifact().Path
	r.PoolSize = p.Size()
	cur := opts.Sampler()
	r.add(Step{Phase: "create", Handle: -1, Memory: cur}, &prev)
	log.Info().Int("engines", p.Size()).Str("memory", memstat.GB(cur.Bytes())).Msg("memory after loading engines")

	hs, err := p.AcquireAll(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.ReleaseAll(hs) }()

	r.Handles = make([]HandleGrowth, len(hs))
	for pass := 1; pass <= opts.Passes; pass++ {
		for i, h := range hs {
			res, err := p.Predict(ctx, h, img)
			if err != nil {
				return nil, err
			}
			cur := opts.Sampler()
			s := r.add(Step{
				Phase:    "predict",
				Pass:     pass,
				Handle:   h.ID(),
				Label:    res.Label,
				Score:    res.Score,
				Cold:     res.Cold,
				Duration: res.Duration,
				Memory:   cur,
			}, &prev)
			g := &r.Handles[i]
			g.Handle = h.ID()
			if pass == 1 {
				g.FirstCall += s.Delta
			} else {
				g.LaterCalls += s.Delta
				if s.Delta > opts.Tolerance {
					r.RepeatedGrowth = true
				}
			}
			log.Info().Int("pass", pass).Int("handle", h.ID()).Bool("cold", res.Cold).
				Str("memory", memstat.GB(cur.Bytes())).Msg("memory after predict")
		}
	}
	for i, h := range hs {
		r.Handles[i].WarmupBytes = h.Info().WarmupBytes
	}
	r.Final = opts.Sampler()
	r.FinishedAt = time.Now()
	if r.RepeatedGrowth {
		log.Warn().Str("run_id", r.RunID).Msg("memory grew after warm-up")
	}
	log.Info().Str("run_id", r.RunID).Msg(r.Summary())
	return r, nil
}

func (r *Report) add(s Step, prev *memstat.Sample) Step {
	s.Delta = s.Memory.Bytes() - prev.Bytes()
	if s.Phase == "baseline" {
		s.Delta = 0
	}
	*prev = s.Memory
	r.Steps = append(r.Steps, s)
	return s
}
