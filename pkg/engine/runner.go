package engine

import (
	"context"
	"time"

	"github.com/hospiq-ai/platform/pkg/common/logger"
)

// Runner drives the continuous optimizer: every tick it sweeps all
// departments sequentially, and a department's failure never stops the
// others or later ticks.
type Runner struct {
	service  *Service
	interval time.Duration
}

func NewRunner(service *Service, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	return &Runner{service: service, interval: interval}
}

func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Log.WithField("interval", r.interval.String()).Info("continuous optimizer started")
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("continuous optimizer stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	departments, err := r.service.store.Departments(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list departments")
		return
	}
	for _, department := range departments {
		if _, err := r.service.Optimize(ctx, department); err != nil {
			logger.Log.WithError(err).WithField("department", department).Error("optimization pass failed")
		}
	}
}
