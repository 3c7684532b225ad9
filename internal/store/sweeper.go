package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/metrics"
)

// DefaultSweepInterval is how often idle captures are checked for expiry.
const DefaultSweepInterval = time.Hour

// RunSweeper evicts expired captures on a fixed interval until ctx is
// cancelled. Run it in its own goroutine.
func RunSweeper(ctx context.Context, s domain.CaptureStore, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// Completed captures were already taken off the gauge when they
			// published, so only the still-active ones count here.
			active := countActiveExpired(ctx, s, now)

			n, err := s.Sweep(ctx, now)
			if err != nil {
				logger.Error("capture sweep failed", "error", err)
				continue
			}
			if n > 0 {
				metrics.CapturesExpired.Add(int64(n))
				if active > n {
					active = n
				}
				for i := 0; i < active; i++ {
					metrics.ActiveCaptures.Dec()
				}
				logger.Info("expired captures evicted", "count", n)
			}
		}
	}
}

func countActiveExpired(ctx context.Context, s domain.CaptureStore, now time.Time) int {
	recs, err := s.List(ctx)
	if err != nil {
		return 0
	}
	active := 0
	for _, r := range recs {
		if r.Expired(now) && r.State != domain.StateCompleted {
			active++
		}
	}
	return active
}
