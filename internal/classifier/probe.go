package classifier

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"classifyd/internal/imageio"
	"classifyd/internal/memstat"
	"classifyd/internal/probe"
	"classifyd/pkg/types"
)

// notFoundError maps to HTTP 404.
type notFoundError struct{ msg string }

func (e notFoundError) Error() string   { return e.msg }
func (e notFoundError) StatusCode() int { return http.StatusNotFound }

// Probe builds a separate pool from the serving configuration, predicts the
// test image on every handle and returns the memory report.
func (s *Service) Probe(ctx context.Context) (types.ProbeResponse, error) {
	if s.opts.TestImage == "" {
		return types.ProbeResponse{}, notFoundError{msg: "no test image configured"}
	}
	img, err := imageio.LoadFile(s.opts.TestImage, "")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.ProbeResponse{}, notFoundError{msg: "test image not found"}
		}
		return types.ProbeResponse{}, err
	}
	cfg := s.opts.Pool
	cfg.Publisher = nil
	r, err := probe.Run(ctx, cfg, img, probe.Options{Passes: s.opts.ProbePasses, Logger: &s.log})
	if err != nil {
		return types.ProbeResponse{}, err
	}
	if s.opts.Ledger != nil {
		if err := s.opts.Ledger.Record(ctx, r); err != nil {
			s.log.Error().Err(err).Str("run_id", r.RunID).Msg("record probe run")
		}
	}
	return ProbeResponse(r), nil
}

// ProbeResponse converts a probe report into its API payload.
func ProbeResponse(r *probe.Report) types.ProbeResponse {
	resp := types.ProbeResponse{
		Message:        r.Summary(),
		RunID:          r.RunID,
		PoolSize:       r.PoolSize,
		Passes:         r.Passes,
		RepeatedGrowth: r.RepeatedGrowth,
		TotalMemory:    memstat.GB(r.Final.Bytes()),
		Steps:          make([]types.ProbeStep, 0, len(r.Steps)),
	}
	for _, st := range r.Steps {
		resp.Steps = append(resp.Steps, types.ProbeStep{
			Phase:       st.Phase,
			Pass:        st.Pass,
			Handle:      st.Handle,
			Label:       st.Label,
			Cold:        st.Cold,
			MemoryBytes: st.Memory.Bytes(),
			DeltaBytes:  st.Delta,
			Memory:      memstat.GB(st.Memory.Bytes()),
		})
	}
	return resp
}
