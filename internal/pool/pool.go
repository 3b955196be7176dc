package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pool owns a fixed set of engine handles derived from one parsed artifact.
type Pool struct {
	id        string
	cfg       Config
	artifact  *Artifact
	model     Model
	labels    []string
	log       zerolog.Logger
	pub       EventPublisher
	metrics   poolMetrics
	createdAt time.Time

	mu      sync.Mutex
	handles []*Handle
	waiters []*waiter
	busy    int
	closed  bool
	// torn is set once Close has begun closing sessions.
	torn bool
	// inflight counts handles inside session.Predict.
	inflight int
	// modelClosed is set once the model has been closed, either by Close or
	// by the last in-flight Predict after teardown.
	modelClosed bool
	// drained is closed by Release when the last held handle comes back
	// during Close.
	drained chan struct{}
}

// Create reads and parses the artifact once, then builds cfg.PoolSize
// sessions from it. On any failure everything created so far is closed and
// no pool is returned.
func Create(cfg Config) (*Pool, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	art, err := loadArtifact(cfg)
	if err != nil {
		return nil, err
	}
	model, err := cfg.Backend.Load(art)
	if err != nil {
		if IsDependencyUnavailable(err) {
			return nil, fmt.Errorf("load model: %w", err)
		}
		return nil, newError(KindArtifactCorrupt, "parse artifact", err)
	}
	labels := append([]string(nil), model.Labels()...)
	if len(labels) == 0 {
		_ = model.Close()
		return nil, newError(KindArtifactCorrupt, "parse artifact", errors.New("model declares no classes"))
	}

	id := uuid.New().String()
	p := &Pool{
		id:        id,
		cfg:       cfg,
		artifact:  art,
		model:     model,
		labels:    labels,
		log:       cfg.Logger.With().Str("component", "pool").Str("pool_id", id).Logger(),
		pub:       cfg.Publisher,
		metrics:   newPoolMetrics(cfg.Name),
		createdAt: time.Now(),
		handles:   make([]*Handle, 0, cfg.PoolSize),
	}
	for i := 0; i < cfg.PoolSize; i++ {
		s, err := model.NewSession()
		if err != nil {
			for _, h := range p.handles {
				_ = h.session.Close()
			}
			_ = model.Close()
			return nil, fmt.Errorf("create engine %d: %w", i, err)
		}
		p.handles = append(p.handles, &Handle{id: i, pool: p, session: s, createdAt: time.Now()})
		if cfg.OnSession != nil {
			cfg.OnSession(i)
		}
	}

	p.log.Info().
		Str("name", cfg.Name).
		Str("backend", cfg.Backend.Name()).
		Str("artifact", art.Path).
		Int64("artifact_bytes", art.Size).
		Int("size", cfg.PoolSize).
		Int("classes", len(labels)).
		Str("acquire_mode", string(cfg.AcquireMode)).
		Msg("pool created")
	p.publish("pool_create", -1, map[string]any{"size": cfg.PoolSize, "backend": cfg.Backend.Name()})
	return p, nil
}

// ID is a random identifier assigned at creation.
func (p *Pool) ID() string { return p.id }

// Size is the number of handles.
func (p *Pool) Size() int { return len(p.handles) }

// Labels returns the model's class labels in class-index order.
func (p *Pool) Labels() []string { return append([]string(nil), p.labels...) }

// Artifact returns the shared artifact. Callers must not modify Data.
func (p *Pool) Artifact() *Artifact { return p.artifact }

// Mode returns the configured acquisition mode.
func (p *Pool) Mode() AcquireMode { return p.cfg.AcquireMode }

// Snapshot returns a read-only view of the pool state.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot{
		ID:             p.id,
		Backend:        p.cfg.Backend.Name(),
		ArtifactPath:   p.artifact.Path,
		ArtifactSize:   p.artifact.Size,
		ArtifactDigest: p.artifact.Digest,
		Labels:         append([]string(nil), p.labels...),
		Size:           len(p.handles),
		Busy:           p.busy,
		Idle:           len(p.handles) - p.busy,
		Waiters:        len(p.waiters),
		Closed:         p.closed,
		CreatedAt:      p.createdAt,
		Handles:        make([]HandleInfo, 0, len(p.handles)),
	}
	for _, h := range p.handles {
		if h.warmed {
			s.Warmed++
		}
		s.Handles = append(s.Handles, h.infoLocked())
	}
	return s
}

// Close tears the pool down. New acquires and queued waiters fail with
// ErrPoolClosed; handles still held get up to DrainTimeout to be released,
// then every session and the model are closed. A session still inside a
// prediction at that point is closed by that prediction when it returns, and
// the model with the last of them. Calling Close again is a no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	var drained chan struct{}
	if p.busy > 0 {
		drained = make(chan struct{})
		p.drained = drained
	}
	p.mu.Unlock()

	for _, w := range waiters {
		close(w.ch)
	}
	if drained != nil {
		timer := time.NewTimer(p.cfg.DrainTimeout)
		select {
		case <-drained:
		case <-timer.C:
			p.mu.Lock()
			busy := p.busy
			p.mu.Unlock()
			p.log.Warn().Int("busy", busy).Dur("drain_timeout", p.cfg.DrainTimeout).Msg("closing with handles still held")
			p.publish("drain_timeout", -1, map[string]any{"busy": busy})
		}
		timer.Stop()
	}

	p.mu.Lock()
	p.torn = true
	var idle []*Handle
	for _, h := range p.handles {
		if !h.inflight {
			h.sessionClosed = true
			idle = append(idle, h)
		}
	}
	deferred := p.inflight
	closeModel := deferred == 0
	p.modelClosed = closeModel
	p.mu.Unlock()

	var errs []error
	for _, h := range idle {
		if err := h.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine %d: %w", h.id, err))
		}
	}
	if closeModel {
		if err := p.model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model: %w", err))
		}
	} else {
		p.log.Warn().Int("inflight", deferred).Msg("sessions still predicting; closing them when their predictions return")
	}
	p.log.Info().Int("waiters_failed", len(waiters)).Msg("pool closed")
	p.publish("pool_close", -1, map[string]any{"waiters_failed": len(waiters)})
	return errors.Join(errs...)
}

// finishTeardownLocked closes h's session if Close ran while h was
// predicting, and the model once no prediction is left. Caller holds p.mu;
// the returned func does the closing and must be called without it.
func (p *Pool) finishTeardownLocked(h *Handle) func() {
	if !p.torn {
		return nil
	}
	var closeSession, closeModel bool
	if !h.sessionClosed {
		h.sessionClosed = true
		closeSession = true
	}
	if p.inflight == 0 && !p.modelClosed {
		p.modelClosed = true
		closeModel = true
	}
	return func() {
		if closeSession {
			if err := h.session.Close(); err != nil {
				p.log.Error().Err(err).Int("handle", h.id).Msg("close engine after teardown")
			}
		}
		if closeModel {
			if err := p.model.Close(); err != nil {
				p.log.Error().Err(err).Msg("close model after teardown")
			}
		}
	}
}
