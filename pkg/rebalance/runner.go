package rebalance

import (
	"context"
	"time"

	"github.com/hospiq-ai/platform/pkg/common/logger"
	"github.com/hospiq-ai/platform/pkg/common/models"
)

// Runner drives the continuous rebalancer on a fixed interval and also reacts
// to queue events between ticks.
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

	logger.Log.WithField("interval", r.interval.String()).Info("continuous rebalancer started")
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("continuous rebalancer stopped")
			return
		case <-ticker.C:
			r.service.RebalanceAll(ctx)
		}
	}
}

// HandleEvent runs an immediate pass for the department named by a queue
// event. Completions and overload alerts both change load distribution, so
// both trigger a pass; other event types are ignored.
func (r *Runner) HandleEvent(ctx context.Context, event models.Event) error {
	switch event.Type {
	case "patient.completed", "department.overloaded":
	default:
		return nil
	}

	department, _ := event.Data["department"].(string)
	if department == "" {
		logger.Log.WithField("event_id", event.ID).Warn("queue event without department, skipping")
		return nil
	}

	_, err := r.service.Rebalance(ctx, department)
	return err
}
