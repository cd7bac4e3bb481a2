package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/1broseidon/vidout/internal/config"
	"github.com/1broseidon/vidout/internal/display"
	"github.com/1broseidon/vidout/internal/ipc"
	"github.com/1broseidon/vidout/internal/logging"
	"github.com/1broseidon/vidout/internal/resolution"
	"github.com/1broseidon/vidout/internal/virtual"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	dev    *virtual.Device
	runner *Runner
	cancel context.CancelFunc
	errCh  chan error
}

func startRunner(t *testing.T, mode display.Mode) *harness {
	t.Helper()
	cfg := virtual.DefaultConfig()
	cfg.AckDelay = time.Millisecond
	dev := virtual.New(cfg)
	reg := resolution.New()

	r := NewRunner(RunnerConfig{
		Device:   dev,
		Backend:  "virtual",
		Mode:     mode,
		Buffers:  2,
		Registry: reg,
		Overscan: reg,
		Logger:   logging.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{dev: dev, runner: r, cancel: cancel, errCh: make(chan error, 1)}
	go func() { h.errCh <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-r.Done():
		case <-time.After(3 * time.Second):
			t.Errorf("runner did not stop")
		}
	})

	waitFor(t, "first frame", func() bool { return r.Status().Frames > 0 })
	return h
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("runner did not stop")
		return nil
	}
}

func TestRunnerRendersAndStops(t *testing.T) {
	h := startRunner(t, display.Mode{})

	st := h.runner.Status()
	if st.State != "window-active" || st.WindowName != "vidout" || !st.FullScreen {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Session == "" || st.Resources != 1 {
		t.Fatalf("expected session id and one registered resource: %+v", st)
	}
	if !st.Mode.Equal(h.dev.Current()) {
		t.Fatalf("status mode %v, hardware %v", st.Mode, h.dev.Current())
	}

	if err := h.stop(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.runner.Do(ctx, func(*display.Manager) error { return nil })
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Do after stop = %v, want ErrNotRunning", err)
	}

	stats := h.dev.Stats()
	if stats.Opens != 1 || stats.Closes != 1 {
		t.Fatalf("opens/closes = %d/%d", stats.Opens, stats.Closes)
	}
	if h.dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d buffers", h.dev.LiveBuffers())
	}
	if got := h.runner.Status().State; got != "uninitialized" {
		t.Fatalf("state after stop = %q", got)
	}
}

func TestRunnerStartsInConfiguredMode(t *testing.T) {
	want := display.Mode{Width: 1920, Height: 1080, RefreshRate: 50}
	h := startRunner(t, want)

	cur := h.dev.Current()
	if cur.Width != 1920 || cur.Interlaced || cur.RefreshRate != 50 {
		t.Fatalf("hardware mode = %v, want 1920x1080@50", cur)
	}
}

func TestRunnerUnknownConfiguredModeKeepsHardware(t *testing.T) {
	h := startRunner(t, display.Mode{Width: 640, Height: 480, RefreshRate: 75})

	if cur := h.dev.Current(); cur.Width != 1920 || cur.RefreshRate != 60 {
		t.Fatalf("hardware mode = %v, want the initial 1080p60", cur)
	}
}

func TestRunnerSetMode(t *testing.T) {
	h := startRunner(t, display.Mode{})

	st, err := h.runner.SetMode("1280x720")
	if err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if st.Mode.Width != 1280 || h.dev.Current().Width != 1280 {
		t.Fatalf("status %v, hardware %v", st.Mode, h.dev.Current())
	}
	if st.Suspended {
		t.Fatalf("mode switch should leave rendering running")
	}
	frames := st.Frames
	waitFor(t, "frames after mode switch", func() bool { return h.runner.Status().Frames > frames })

	if _, err := h.runner.SetMode("640x480@60"); !errors.Is(err, display.ErrModeSet) {
		t.Fatalf("SetMode(640x480) = %v, want ErrModeSet", err)
	}
	if _, err := h.runner.SetMode("huge"); err == nil {
		t.Fatalf("expected parse error")
	}
	if h.dev.Current().Width != 1280 {
		t.Fatalf("failed switches must keep the active mode")
	}
}

func TestRunnerSuspendResume(t *testing.T) {
	h := startRunner(t, display.Mode{})

	if err := h.runner.Suspend(); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	st := h.runner.Status()
	if !st.Suspended {
		t.Fatalf("expected suspended status")
	}
	time.Sleep(60 * time.Millisecond)
	if got := h.runner.Status().Frames; got != st.Frames {
		t.Fatalf("frames advanced while suspended: %d -> %d", st.Frames, got)
	}

	// Control requests are still served while suspended.
	if _, err := h.runner.UpdateResolutions(); err != nil {
		t.Fatalf("UpdateResolutions while suspended: %v", err)
	}

	if err := h.runner.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitFor(t, "frames after resume", func() bool { return h.runner.Status().Frames > st.Frames })
}

func TestRunnerStaysSuspendedAcrossModeSwitch(t *testing.T) {
	h := startRunner(t, display.Mode{})

	if err := h.runner.Suspend(); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	st, err := h.runner.SetMode("1280x720@60")
	if err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if !st.Suspended {
		t.Fatalf("mode switch cleared the suspend")
	}
	frames := st.Frames
	time.Sleep(60 * time.Millisecond)
	if got := h.runner.Status().Frames; got != frames {
		t.Fatalf("frames advanced while suspended: %d -> %d", frames, got)
	}

	if err := h.runner.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if h.runner.Status().Suspended {
		t.Fatalf("still suspended after resume")
	}
	waitFor(t, "frames after resume", func() bool { return h.runner.Status().Frames > frames })
}

func TestRunnerHotplugRefreshesCatalog(t *testing.T) {
	h := startRunner(t, display.Mode{})
	if n := len(h.runner.Modes().Modes); n != 5 {
		t.Fatalf("expected 5 modes, got %d", n)
	}

	h.dev.TriggerHotplug([]display.Mode{
		{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, RefreshRate: 60},
		{Width: 3840, Height: 2160, ScreenWidth: 3840, ScreenHeight: 2160, RefreshRate: 30},
	})
	waitFor(t, "hotplug refresh", func() bool { return len(h.runner.Modes().Modes) == 2 })
}

func TestRunnerPresentationFaultStops(t *testing.T) {
	h := startRunner(t, display.Mode{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	boom := errors.New("flip lost")
	err := h.runner.Do(ctx, func(*display.Manager) error {
		h.dev.AckErr = boom
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	select {
	case err := <-h.errCh:
		if !errors.Is(err, display.ErrPresentation) || !errors.Is(err, boom) {
			t.Fatalf("Run = %v, want presentation fault", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("runner kept going after a presentation fault")
	}
}

func TestRunnerRejectsSecondRun(t *testing.T) {
	h := startRunner(t, display.Mode{})
	if err := h.runner.Run(context.Background()); err == nil {
		t.Fatalf("expected error from second Run")
	}
}

func TestReconcilerRestoresDriftedMode(t *testing.T) {
	h := startRunner(t, display.Mode{})
	committed := h.dev.Current()

	// Something outside the daemon switches the output.
	drifted := display.Mode{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, RefreshRate: 50}
	if err := h.dev.SetMode(drifted); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	rec := NewReconciler(ReconcilerConfig{Interval: time.Hour, Logger: logging.Discard()}, h.runner)
	rec.ReconcileNow(context.Background())

	if cur := h.dev.Current(); !cur.Equal(committed) {
		t.Fatalf("hardware mode = %v, want %v restored", cur, committed)
	}
}

func TestReconcilerStopsWithRunner(t *testing.T) {
	h := startRunner(t, display.Mode{})
	rec := NewReconciler(ReconcilerConfig{Interval: 5 * time.Millisecond, Logger: logging.Discard()}, h.runner)

	done := make(chan struct{})
	go func() {
		rec.Run(context.Background())
		close(done)
	}()

	if err := h.stop(t); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("reconciler did not stop with the runner")
	}
}

func TestServeVirtualBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendVirtual
	cfg.Virtual.AckDelayMS = 1
	cfg.ReconcileSeconds = 0
	cfg.Calibrations = filepath.Join(dir, "calibrations.yaml")

	socket := filepath.Join(dir, "vidout.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(ctx, cfg, logging.Discard(), ServeOptions{
			SocketPath: socket,
			NoAudio:    true,
		})
	}()

	client := ipc.NewClientAt(socket)
	waitFor(t, "daemon window", func() bool {
		st, err := client.GetStatus()
		return err == nil && st.State == "window-active"
	})

	st, err := client.SetMode("1280x720@60")
	if err != nil {
		t.Fatalf("SetMode over IPC: %v", err)
	}
	if st.Mode.Width != 1280 || st.Backend != "virtual" || !st.DaemonRunning {
		t.Fatalf("unexpected status: %+v", st)
	}
	modes, err := client.GetModes()
	if err != nil {
		t.Fatalf("GetModes: %v", err)
	}
	if len(modes.Modes) != 5 || modes.Current.Width != 1280 {
		t.Fatalf("unexpected modes: %+v", modes)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve did not return")
	}
	if err := client.Ping(); err == nil {
		t.Fatalf("expected ping to fail after shutdown")
	}
}

func TestServeRejectsBadVirtualConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendVirtual
	cfg.Virtual.Modes = []string{"nope"}

	err := Serve(context.Background(), cfg, logging.Discard(), ServeOptions{
		SocketPath: filepath.Join(t.TempDir(), "vidout.sock"),
		NoAudio:    true,
	})
	if err == nil {
		t.Fatalf("expected error for invalid virtual modes")
	}
}
