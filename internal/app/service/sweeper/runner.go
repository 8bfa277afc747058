package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parsalearn/enrollpay/pkg/config"
)

// Runner executes sweeps on a fixed cadence until the context is canceled.
type Runner struct {
	svc      *Service
	log      *zap.SugaredLogger
	interval time.Duration
}

func NewRunner(cfg *config.Config, svc *Service, log *zap.SugaredLogger) *Runner {
	interval := cfg.Sweeper.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Runner{svc: svc, log: log, interval: interval}
}

func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.svc.Sweep(ctx); err != nil {
		r.log.Errorw("sweep run failed", "err", err)
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Infow("sweeper runner stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.svc.Sweep(ctx); err != nil {
				r.log.Errorw("sweep run failed", "err", err)
			}
		}
	}
}
