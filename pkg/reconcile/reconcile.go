// Package reconcile implements the background sweep described in
// spec.md §4.8: a worker wakes on a schedule, selects stale pending
// payments for the active provider, queries provider status, and applies
// the resulting transition through the same state-machine entry point used
// by webhooks and synchronous verification.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/contentkeep/pkg/payment"
)

// Worker periodically reconciles stale pending payments. Grounded directly
// on the teacher's escalation.Engine: a time.Ticker loop, cancellable via
// ctx, safe to Run and stop multiple times.
type Worker struct {
	payments  *payment.Service
	logger    *slog.Logger
	interval  time.Duration
	threshold time.Duration

	pendingOver15m  prometheus.Gauge
	corrections     prometheus.Counter
	failures        prometheus.Counter
}

func NewWorker(payments *payment.Service, logger *slog.Logger, interval, threshold time.Duration, pendingOver15m prometheus.Gauge, corrections, failures prometheus.Counter) *Worker {
	return &Worker{
		payments:       payments,
		logger:         logger,
		interval:       interval,
		threshold:      threshold,
		pendingOver15m: pendingOver15m,
		corrections:    corrections,
		failures:       failures,
	}
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("reconciliation worker started", "interval", w.interval, "threshold", w.threshold)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciliation worker stopped")
			return nil
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.logger.Error("reconciliation worker tick", "error", err)
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	cutoff := time.Now().Add(-w.threshold)

	count, err := w.payments.CountPendingOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("counting stale pending payments: %w", err)
	}
	if w.pendingOver15m != nil {
		w.pendingOver15m.Set(float64(count))
	}

	stale, err := w.payments.ListStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing stale pending payments: %w", err)
	}

	for _, p := range stale {
		_, changed, err := w.payments.ReconcileOne(ctx, p)
		if err != nil {
			w.logger.Error("reconciling payment", "error", err, "payment", p.ID)
			if w.failures != nil {
				w.failures.Inc()
			}
			continue
		}
		if changed {
			w.logger.Info("reconciliation corrected stale payment", "payment", p.ID, "hash", p.PaymentHash)
			if w.corrections != nil {
				w.corrections.Inc()
			}
		}
	}

	return nil
}
