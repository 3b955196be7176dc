package classifier

import (
	"time"

	"classifyd/internal/memstat"
	"classifyd/pkg/types"
)

// Status reports pool and per-handle state for /status.
func (s *Service) Status() types.StatusResponse {
	snap := s.pool.Snapshot()
	resp := types.StatusResponse{
		PoolID:         snap.ID,
		Backend:        snap.Backend,
		Artifact:       snap.ArtifactPath,
		ArtifactDigest: snap.ArtifactDigest,
		ArtifactBytes:  snap.ArtifactSize,
		Labels:         snap.Labels,
		AcquireMode:    string(s.pool.Mode()),
		Size:           snap.Size,
		Idle:           snap.Idle,
		Busy:           snap.Busy,
		Warmed:         snap.Warmed,
		Waiters:        snap.Waiters,
		Closed:         snap.Closed,
		State:          "ready",
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
		MemoryBytes:    memstat.Read().Bytes(),
	}
	if snap.Closed {
		resp.State = "closed"
	}
	resp.Handles = make([]types.HandleStatus, 0, len(snap.Handles))
	for _, h := range snap.Handles {
		hs := types.HandleStatus{
			ID:          h.ID,
			Busy:        h.Busy,
			Warmed:      h.Warmed,
			WarmupMS:    h.WarmupDuration.Milliseconds(),
			WarmupBytes: h.WarmupBytes,
			Predictions: h.Predictions,
			Failures:    h.Failures,
		}
		if !h.WarmedAt.IsZero() {
			hs.WarmedAtUnix = h.WarmedAt.Unix()
		}
		if !h.LastUsed.IsZero() {
			hs.LastUsedUnix = h.LastUsed.Unix()
		}
		resp.Handles = append(resp.Handles, hs)
	}
	return resp
}
