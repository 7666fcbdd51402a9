package web

import (
	"context"
	"time"

	"photoman/logger"
	"photoman/metrics"
)

// Sweep drops the workspaces idle for longer than maxIdle together with
// their staged photos. Their sessions are long gone or about to be.
func (h *Handlers) Sweep(maxIdle time.Duration) int {
	idle := h.Store.Idle(maxIdle)
	for _, workspace := range idle {
		h.deletePhotos(h.Store.Drop(workspace))
	}
	metrics.ActiveWorkspaces.Set(float64(h.Store.Count()))
	return len(idle)
}

// StartJanitor sweeps every interval until ctx is done
func (h *Handlers) StartJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	log := logger.Get()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.Sweep(maxIdle); n > 0 {
				log.Info().Int("workspaces", n).Dur("idle", maxIdle).Msg("dropped idle workspaces")
			}
		}
	}
}
