package sweeper

import (
	"context"
	"time"
)

// Run sweeps on a fixed interval until ctx is cancelled. It is the in-process
// alternative to an external scheduler hitting the sweep endpoint; both can be
// active at once.
func Run(ctx context.Context, s *Sweeper, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := s.logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.ErrorContext(ctx, "scheduled sweep failed", "error", err)
			}
		}
	}
}
