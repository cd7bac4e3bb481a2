package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/1broseidon/vidout/internal/display"
)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically checks that the hardware still scans out the
// committed mode and re-commits it when something else changed it.
type Reconciler struct {
	interval time.Duration
	runner   *Runner
	logger   *slog.Logger
}

// NewReconciler creates a new reconciler for runner.
func NewReconciler(cfg ReconcilerConfig, runner *Runner) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval: interval,
		runner:   runner,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until ctx is cancelled or the
// runner exits.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-r.runner.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile(ctx context.Context) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	err := r.runner.Do(ctx, func(m *display.Manager) error {
		if m.State() != display.StateWindowActive {
			return nil
		}
		want := m.CurrentMode()
		hw, err := m.Catalog().HardwareMode()
		if err != nil {
			r.logger.Warn("reconciler: failed to read hardware mode", "error", err)
			return nil
		}
		if hw.Equal(want) {
			return nil
		}

		r.logger.Info("reconciler: mode drift detected",
			"committed", want.String(),
			"hardware", hw.String())
		if err := m.SetFullScreen(m.FullScreen(), want, false); err != nil {
			return err
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotRunning) {
		r.logger.Error("reconciler: failed to restore mode", "error", err)
	}
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow(ctx context.Context) {
	r.reconcile(ctx)
}
