// Package processor sweeps orders with pending work on a fixed interval.
package processor

import (
	"context"
	"errors"
	"time"

	"go_certbot/internal/model"
	"go_certbot/internal/order"

	"github.com/sirupsen/logrus"
)

// Config defines worker configuration
type Config struct {
	Enabled     bool
	IntervalSec int
	BatchSize   int
}

// Stats counts what one sweep did
type Stats struct {
	Generated   int
	Issued      int
	Reinstalled int
	Expired     int
	Failed      int
}

// Worker runs the background passes
type Worker struct {
	machine     *order.Machine
	config      Config
	logger      *logrus.Entry
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewWorker creates a new worker
func NewWorker(machine *order.Machine, config Config, logger *logrus.Entry) *Worker {
	if config.IntervalSec <= 0 {
		config.IntervalSec = 40
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	return &Worker{
		machine:     machine,
		config:      config,
		logger:      logger.WithField("component", "acme-processor"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker
func (w *Worker) Start() {
	if !w.config.Enabled {
		w.logger.Info("Disabled, skipping")
		close(w.stoppedChan)
		return
	}

	w.logger.Infof("Starting with interval=%ds, batch=%d", w.config.IntervalSec, w.config.BatchSize)

	go w.run()
}

// Stop stops the worker and waits for the current sweep to finish
func (w *Worker) Stop() {
	if !w.config.Enabled {
		return
	}

	w.logger.Info("Stopping...")
	close(w.stopChan)
	<-w.stoppedChan
	w.logger.Info("Stopped")
}

func (w *Worker) run() {
	defer close(w.stoppedChan)

	ticker := time.NewTicker(time.Duration(w.config.IntervalSec) * time.Second)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run immediately on start
	w.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			w.Tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

// Tick runs every pass once. Passes are independent; one order's failure
// never stops the rest of its batch.
func (w *Worker) Tick(ctx context.Context) Stats {
	var stats Stats

	stats.Generated = w.runStep(ctx, model.StepDNSGeneration, w.machine.GenerateDNS, &stats)
	stats.Issued = w.runStep(ctx, model.StepIssuance, w.machine.Issue, &stats)
	stats.Reinstalled = w.runStep(ctx, model.StepReinstall, w.machine.Reinstall, &stats)
	stats.Expired = w.expire(ctx)

	if stats != (Stats{}) {
		w.logger.WithFields(logrus.Fields{
			"generated":   stats.Generated,
			"issued":      stats.Issued,
			"reinstalled": stats.Reinstalled,
			"expired":     stats.Expired,
			"failed":      stats.Failed,
		}).Info("Sweep finished")
	}
	return stats
}

func (w *Worker) runStep(ctx context.Context, step model.Step, run func(context.Context, int) (*order.Result, error), stats *Stats) int {
	orders, err := w.machine.Store().ListReady(ctx, step, w.config.BatchSize)
	if err != nil {
		w.logger.WithField("step", step).Errorf("Failed to list orders: %v", err)
		return 0
	}

	done := 0
	for i := range orders {
		if ctx.Err() != nil {
			return done
		}
		o := &orders[i]
		log := w.logger.WithFields(logrus.Fields{"step": step, "orderId": o.ID, "domain": o.Domain})

		_, err := run(ctx, o.ID)
		switch {
		case err == nil:
			done++
		case errors.Is(err, order.ErrIllegalTransition), errors.Is(err, order.ErrNotFound):
			log.Debugf("Skipped: %v", err)
		case errors.Is(err, order.ErrPropagationPending):
			log.Info("CA has not seen the TXT record yet, order returned to dns_wait")
		default:
			stats.Failed++
			log.Warnf("Step failed: %v", err)
		}
	}
	return done
}

func (w *Worker) expire(ctx context.Context) int {
	cutoff, ok := w.machine.FailedCutoff()
	if !ok {
		return 0
	}
	n, err := w.machine.ExpireFailed(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		w.logger.Errorf("Failed to expire failed orders: %v", err)
	}
	return n
}
