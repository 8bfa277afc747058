package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parsalearn/enrollpay/pkg/config"
)

// Runner drains the outbox on a fixed cadence until the context is canceled.
type Runner struct {
	svc      *Service
	log      *zap.SugaredLogger
	interval time.Duration
}

func NewRunner(cfg *config.Config, svc *Service, log *zap.SugaredLogger) *Runner {
	interval := cfg.Dispatch.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Runner{svc: svc, log: log, interval: interval}
}

func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.svc.Drain(ctx); err != nil {
		r.log.Errorw("outbox drain failed", "err", err)
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Infow("dispatch runner stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.svc.Drain(ctx); err != nil {
				r.log.Errorw("outbox drain failed", "err", err)
			}
		}
	}
}
