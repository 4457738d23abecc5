package worker

import (
	"context"
	"log/slog"
	"time"
)

type BridgePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type SweepMetrics interface {
	BridgePurged(n int64)
}

// BridgeSweeper apaga associações de bridge expiradas. Expiradas já são
// ignoradas pelo consume; o sweeper só evita que a tabela cresça sem limite.
type BridgeSweeper struct {
	purger       BridgePurger
	metrics      SweepMetrics
	tickInterval time.Duration
}

func NewBridgeSweeper(purger BridgePurger, metrics SweepMetrics, interval time.Duration) *BridgeSweeper {
	return &BridgeSweeper{
		purger:       purger,
		metrics:      metrics,
		tickInterval: interval,
	}
}

func (w *BridgeSweeper) Start(ctx context.Context) {
	if w.tickInterval <= 0 {
		slog.Info("BridgeSweeper: disabled")
		return
	}
	slog.Info("BridgeSweeper: started", "interval", w.tickInterval)

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("BridgeSweeper: stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *BridgeSweeper) sweep(ctx context.Context) {
	n, err := w.purger.PurgeExpired(ctx)
	if err != nil {
		slog.Error("BridgeSweeper: purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("BridgeSweeper: expired associations deleted", "count", n)
		if w.metrics != nil {
			w.metrics.BridgePurged(n)
		}
	}
}
