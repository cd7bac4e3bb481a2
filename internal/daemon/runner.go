package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/vidout/internal/audiosink"
	"github.com/1broseidon/vidout/internal/display"
	"github.com/1broseidon/vidout/internal/ipc"
)

// ErrNotRunning is returned by Do once the render loop has exited.
var ErrNotRunning = errors.New("display runner is not running")

// RunnerConfig holds configuration for the runner.
type RunnerConfig struct {
	Device  display.Device
	Backend string
	// Mode is the preferred startup mode. A zero Mode keeps the mode the
	// hardware is scanning out.
	Mode       display.Mode
	WindowName string
	Buffers    int
	Registry   display.ResolutionRegistry
	Overscan   display.Overscan
	// Audio, if set, is registered in the background with AudioPref.
	Audio     audiosink.Registrar
	AudioPref audiosink.Preference
	Logger    *slog.Logger
}

type command struct {
	fn    func(*display.Manager) error
	reply chan error
}

type snapshot struct {
	state      display.State
	mode       display.Mode
	modes      []display.Mode
	windowName string
	fullScreen bool
}

// Runner is the render goroutine. It owns the display.Manager: control
// requests and hot-plug events are funnelled into its loop so the manager
// is only ever touched from one goroutine.
type Runner struct {
	cfg     RunnerConfig
	mgr     *display.Manager
	logger  *slog.Logger
	session string

	cmds    chan command
	done    chan struct{}
	started atomic.Bool
	paused  atomic.Bool
	// suspended is set only by Suspend and Resume; display events
	// raised by mode switches leave it alone.
	suspended atomic.Bool

	mu        sync.RWMutex
	snap      snapshot
	audioSink string
}

var _ display.Resource = (*Runner)(nil)

// NewRunner builds a runner over cfg.Device.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WindowName == "" {
		cfg.WindowName = "vidout"
	}

	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		session: uuid.NewString(),
		cmds:    make(chan command),
		done:    make(chan struct{}),
	}
	r.mgr = display.NewManager(cfg.Device, display.Options{
		Buffers:  cfg.Buffers,
		Registry: cfg.Registry,
		Overscan: cfg.Overscan,
		Logger:   logger,
		OnStateChange: func(from, to display.State) {
			logger.Info("display state changed", "from", from.String(), "to", to.String())
		},
	})
	return r
}

// Session returns the id of this daemon run.
func (r *Runner) Session() string {
	return r.session
}

// Manager exposes the display manager for observer registration.
// Lifecycle methods must only be called through Do.
func (r *Runner) Manager() *display.Manager {
	return r.mgr
}

// OnDisplayEvent pauses rendering while the display is lost.
func (r *Runner) OnDisplayEvent(ev display.Event) {
	switch ev {
	case display.EventLost:
		r.paused.Store(true)
	case display.EventReset:
		r.paused.Store(false)
	}
}

// Run brings the display up, renders until ctx is cancelled and tears the
// display down again. A presentation fault stops the loop and is returned.
func (r *Runner) Run(ctx context.Context) (err error) {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("runner already started")
	}
	defer close(r.done)

	audioDone := r.startAudio()
	defer r.stopAudio(audioDone)

	if err := r.mgr.InitWindowSystem(); err != nil {
		return err
	}
	defer func() {
		if derr := r.mgr.DestroyWindowSystem(); derr != nil {
			r.logger.Warn("display teardown failed", "error", derr)
		}
		r.publish()
	}()

	r.mgr.UpdateResolutions()
	mode, err := r.startupMode()
	if err != nil {
		return err
	}
	if err := r.mgr.CreateNewWindow(r.cfg.WindowName, true, mode); err != nil {
		return err
	}
	r.mgr.Register(r)
	defer r.mgr.Unregister(r)
	r.publish()

	r.logger.Info("display runner started",
		"session", r.session,
		"backend", r.cfg.Backend,
		"mode", mode.String())

	var hotplug <-chan struct{}
	if hp, ok := r.cfg.Device.(display.HotplugSource); ok {
		hotplug = hp.Hotplug()
	}

	for {
		if r.paused.Load() || r.suspended.Load() {
			select {
			case <-ctx.Done():
				r.logger.Info("display runner stopped")
				return nil
			case c := <-r.cmds:
				r.exec(c)
			case <-hotplug:
				r.onHotplug()
			}
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("display runner stopped", "frames", r.mgr.Frames())
			return nil
		case c := <-r.cmds:
			r.exec(c)
			continue
		case <-hotplug:
			r.onHotplug()
			continue
		default:
		}

		if err := r.frame(); err != nil {
			r.logger.Error("presentation fault, stopping video output", "error", err)
			return err
		}
	}
}

func (r *Runner) frame() error {
	if err := r.mgr.WaitVBlank(); err != nil {
		return err
	}
	return r.mgr.FlipPage()
}

// startupMode picks the configured mode when the hardware offers it,
// otherwise what the hardware already shows, otherwise the first mode.
func (r *Runner) startupMode() (display.Mode, error) {
	modes := r.mgr.Modes()
	if !r.cfg.Mode.IsZero() {
		if m, ok := display.Match(modes, r.cfg.Mode); ok {
			return m, nil
		}
		r.logger.Warn("configured mode not available, keeping current mode", "mode", r.cfg.Mode.String())
	}
	if hw, err := r.mgr.Catalog().HardwareMode(); err == nil && !hw.IsZero() {
		if m, ok := display.Match(modes, hw); ok {
			return m, nil
		}
		if len(modes) == 0 {
			return hw, nil
		}
	}
	if len(modes) > 0 {
		return modes[0], nil
	}
	return display.Mode{}, fmt.Errorf("%w: no usable mode", display.ErrQuery)
}

func (r *Runner) exec(c command) {
	err := c.fn(r.mgr)
	r.publish()
	c.reply <- err
}

func (r *Runner) onHotplug() {
	r.logger.Info("output configuration changed")
	r.mgr.UpdateResolutions()
	r.publish()
}

// Do runs fn on the render goroutine and returns its error.
func (r *Runner) Do(ctx context.Context, fn func(*display.Manager) error) error {
	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case r.cmds <- c:
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) publish() {
	s := snapshot{
		state:      r.mgr.State(),
		mode:       r.mgr.CurrentMode(),
		modes:      r.mgr.Modes(),
		windowName: r.mgr.WindowName(),
		fullScreen: r.mgr.FullScreen(),
	}
	r.mu.Lock()
	r.snap = s
	r.mu.Unlock()
}

func (r *Runner) startAudio() <-chan struct{} {
	done := make(chan struct{})
	if r.cfg.Audio == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		defer func() {
			if err := recover(); err != nil {
				r.logger.Error("audio registration panic recovered", "error", err)
			}
		}()
		backend := audiosink.Register(r.cfg.AudioPref, r.cfg.Audio, r.logger)
		r.mu.Lock()
		r.audioSink = backend
		r.mu.Unlock()
	}()
	return done
}

func (r *Runner) stopAudio(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.logger.Warn("audio registration still running at shutdown")
		return
	}
	if c, ok := r.cfg.Audio.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.logger.Warn("failed to release audio sink", "error", err)
		}
	}
}

// Status reports the runner state. Safe for concurrent use.
func (r *Runner) Status() ipc.StatusData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ipc.StatusData{
		Session:    r.session,
		Backend:    r.cfg.Backend,
		State:      r.snap.state.String(),
		Mode:       r.snap.mode,
		WindowName: r.snap.windowName,
		FullScreen: r.snap.fullScreen,
		Suspended:  r.suspended.Load() || r.paused.Load(),
		Frames:     r.mgr.Frames(),
		Resources:  r.mgr.Resources(),
		AudioSink:  r.audioSink,
	}
}

// Modes returns the last published catalog. Safe for concurrent use.
func (r *Runner) Modes() ipc.ModesData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := r.snap.modes
	if modes == nil {
		modes = []display.Mode{}
	}
	return ipc.ModesData{Modes: modes, Current: r.snap.mode}
}
