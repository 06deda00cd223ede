package sla

import (
	"context"
	"log/slog"
	"time"
)

// Monitor runs the evaluation pass on a fixed interval. The pass is
// stateless and idempotent, so overlapping deployments or an extra on-demand
// run through the API never double-emit.
type Monitor struct {
	evaluator *Evaluator
	interval  time.Duration
	logger    *slog.Logger
}

// NewMonitor creates a periodic monitor.
func NewMonitor(evaluator *Evaluator, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		evaluator: evaluator,
		interval:  interval,
		logger:    logger,
	}
}

// Run evaluates immediately and then on every tick until the context is
// canceled. A failed pass is logged and retried on the next tick.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("SLA monitor started",
		slog.Duration("interval", m.interval),
	)

	m.evaluate(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("SLA monitor stopping, context canceled")
			return nil
		case <-ticker.C:
			m.evaluate(ctx)
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context) {
	counts, err := m.evaluator.Run(ctx)
	if err != nil {
		m.logger.Error("SLA evaluation pass failed",
			slog.String("error", err.Error()),
		)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total > 0 {
		m.logger.Info("SLA monitor emitted events",
			slog.Int("total", total),
		)
	}
}
