package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/1broseidon/vidout/internal/audiosink"
	"github.com/1broseidon/vidout/internal/config"
	"github.com/1broseidon/vidout/internal/display"
	"github.com/1broseidon/vidout/internal/ipc"
	"github.com/1broseidon/vidout/internal/resolution"
	"github.com/1broseidon/vidout/internal/runtimepath"
	"github.com/1broseidon/vidout/internal/virtual"
	"github.com/1broseidon/vidout/internal/x11"
)

// ServeOptions overrides parts of the daemon wiring. The zero value uses
// the configured backend, the runtime socket and the malgo audio sink.
type ServeOptions struct {
	Device     display.Device
	SocketPath string
	Audio      audiosink.Registrar
	// NoAudio skips audio sink registration.
	NoAudio bool
	// Ready, if set, is called once the IPC server is listening.
	Ready func(*Runner)
}

// NewDevice builds the display device selected by cfg.Backend.
func NewDevice(cfg *config.Config, logger *slog.Logger) (display.Device, error) {
	switch cfg.Backend {
	case config.BackendX11:
		return x11.NewDevice(cfg.Display, cfg.XAuthority, logger), nil
	case config.BackendVirtual:
		modes, current, delay, err := cfg.VirtualHardware()
		if err != nil {
			return nil, err
		}
		return virtual.New(virtual.Config{
			Modes:     modes,
			Current:   current,
			AckDelay:  delay,
			NoOutputs: len(modes) == 0,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Serve runs the daemon until ctx is cancelled or the display fails.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ServeOptions) error {
	if logger == nil {
		logger = slog.Default()
	}

	dev := opts.Device
	if dev == nil {
		var err error
		if dev, err = NewDevice(cfg, logger); err != nil {
			return err
		}
	}

	mode, _, err := cfg.PreferredMode()
	if err != nil {
		return err
	}

	registry := resolution.New()
	calPath, err := cfg.CalibrationsPath()
	if err != nil {
		logger.Warn("calibrations path unavailable", "error", err)
	} else if err := registry.LoadCalibrations(calPath); err != nil {
		logger.Warn("failed to load calibrations", "path", calPath, "error", err)
	}

	audio := opts.Audio
	if audio == nil && !opts.NoAudio {
		audio = audiosink.NewMalgo(logger)
	}

	runner := NewRunner(RunnerConfig{
		Device:     dev,
		Backend:    string(cfg.Backend),
		Mode:       mode,
		WindowName: cfg.WindowName,
		Buffers:    cfg.Buffers,
		Registry:   registry,
		Overscan:   registry,
		Audio:      audio,
		AudioPref:  cfg.AudioPreference(),
		Logger:     logger,
	})

	socketPath := opts.SocketPath
	if socketPath == "" {
		if socketPath, err = runtimepath.SocketPath(); err != nil {
			return fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
	}
	server := ipc.NewServerAt(socketPath, runner, logger)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if interval := cfg.ReconcileInterval(); interval > 0 {
		reconciler := NewReconciler(ReconcilerConfig{Interval: interval, Logger: logger}, runner)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reconciler.Run(ctx)
		}()
	}

	if opts.Ready != nil {
		opts.Ready(runner)
	}

	err = runner.Run(ctx)
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("vidout daemon stopped", "session", runner.Session())
	return nil
}
