package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/1broseidon/vidout/internal/logging"
)

// State is the Manager lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateWindowActive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateWindowActive:
		return "window-active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ResolutionRegistry receives the published mode catalog.
type ResolutionRegistry interface {
	ClearCustomResolutions()
	AddResolution(m Mode)
	UpdateDesktopResolution(screen, width, height int, refreshRate float64)
	ApplyCalibrations()
}

// Overscan resets per-mode calibration before a mode is published.
type Overscan interface {
	ResetOverscan(m Mode)
}

// Options configures a Manager.
type Options struct {
	// Buffers is the surface ring size, 2 or 3. Defaults to 2.
	Buffers  int
	Registry ResolutionRegistry
	Overscan Overscan
	Logger   *slog.Logger
	// OnStateChange, if set, is called after every state transition.
	OnStateChange func(from, to State)
}

// Manager composes the connection, catalog, surface, pump and notifier and
// enforces the lifecycle:
//
//	Uninitialized -> Connected -> WindowActive -> Connected -> Uninitialized
//
// All methods except Register, Unregister and Notify must be called from a
// single goroutine.
type Manager struct {
	conn     *Connection
	catalog  *Catalog
	surface  *Surface
	pump     *Pump
	notifier Notifier

	registry      ResolutionRegistry
	overscan      Overscan
	logger        *slog.Logger
	onStateChange func(from, to State)

	state      State
	published  []Mode
	windowName string
	fullScreen bool
}

// NewManager builds a Manager over dev.
func NewManager(dev Device, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = nopRegistry{}
	}
	overscan := opts.Overscan
	if overscan == nil {
		overscan = nopOverscan{}
	}

	conn := NewConnection(dev, logger)
	return &Manager{
		conn:          conn,
		catalog:       NewCatalog(conn),
		surface:       NewSurface(conn, opts.Buffers),
		pump:          NewPump(conn),
		registry:      registry,
		overscan:      overscan,
		logger:        logger.With("component", "display"),
		onStateChange: opts.OnStateChange,
	}
}

// InitWindowSystem opens the display connection.
func (m *Manager) InitWindowSystem() error {
	if m.state != StateUninitialized {
		return fmt.Errorf("%w: init in state %s", ErrInvalidState, m.state)
	}
	if err := m.conn.Open(); err != nil {
		m.logger.Error("failed to initialize display connection", "error", err)
		return err
	}
	m.pump.Reset()
	m.logger.Debug("initialized display connection")
	m.setState(StateConnected)
	return nil
}

// DestroyWindowSystem closes the connection, destroying the window first
// when one is still active.
func (m *Manager) DestroyWindowSystem() error {
	switch m.state {
	case StateUninitialized:
		return nil
	case StateWindowActive:
		if err := m.DestroyWindow(); err != nil {
			m.logger.Warn("window teardown reported an error", "error", err)
		}
	}

	err := m.conn.Close()
	m.published = nil
	m.logger.Debug("deinitialized display connection")
	m.setState(StateUninitialized)
	return err
}

// CreateNewWindow commits mode and allocates a surface for it. If either
// step fails the manager stays Connected.
func (m *Manager) CreateNewWindow(name string, fullScreen bool, mode Mode) error {
	if m.state != StateConnected {
		return fmt.Errorf("%w: create window in state %s", ErrInvalidState, m.state)
	}
	if err := m.conn.SetMode(mode); err != nil {
		m.logger.Error("failed to set mode", "mode", mode.String(), "error", err)
		return err
	}
	if err := m.surface.Allocate(mode); err != nil {
		m.logger.Error("failed to allocate surface", "mode", mode.String(), "error", err)
		return err
	}

	m.windowName = name
	m.fullScreen = fullScreen
	m.logger.Debug("initialized surface", "window", name, "mode", mode.String(), "buffers", m.surface.Len())
	m.setState(StateWindowActive)
	return nil
}

// DestroyWindow waits for the outstanding flip and frees the surface.
func (m *Manager) DestroyWindow() error {
	if m.state != StateWindowActive {
		return fmt.Errorf("%w: destroy window in state %s", ErrInvalidState, m.state)
	}
	drainErr := m.pump.Drain()
	freeErr := m.surface.Free()
	m.windowName = ""
	m.fullScreen = false
	m.logger.Debug("deinitialized surface")
	m.setState(StateConnected)
	return errors.Join(drainErr, freeErr)
}

// ResizeWindow is a no-op: output geometry is fixed by the mode.
func (m *Manager) ResizeWindow(width, height, left, top int) bool {
	return true
}

// SetFullScreen switches the active window to mode. When the hardware
// rejects it the previous mode stays committed. Buffers are reallocated
// only when the size changes.
func (m *Manager) SetFullScreen(fullScreen bool, mode Mode, blankOtherDisplays bool) error {
	if m.state != StateWindowActive {
		return fmt.Errorf("%w: set fullscreen in state %s", ErrInvalidState, m.state)
	}
	prev, _ := m.conn.Active()
	resize := !prev.SameSize(mode)
	// The outstanding flip still scans out of the old buffers; a fault here
	// must surface before anything is committed.
	if resize {
		if err := m.pump.Drain(); err != nil {
			m.logger.Error("failed to drain flip before mode switch", "mode", mode.String(), "error", err)
			return err
		}
	}
	if err := m.conn.SetMode(mode); err != nil {
		m.logger.Error("failed to set mode", "mode", mode.String(), "error", err)
		return err
	}

	if !resize {
		m.surface.rebind(mode)
	} else if err := m.reallocate(prev, mode); err != nil {
		return err
	}

	m.fullScreen = fullScreen
	m.logger.Debug("switched mode", "from", prev.String(), "to", mode.String(), "blank_other_displays", blankOtherDisplays)
	m.notifier.Notify(EventModeChanged)
	return nil
}

// reallocate expects the pump to be drained.
func (m *Manager) reallocate(prev, mode Mode) error {
	m.notifier.Notify(EventLost)
	if err := m.surface.Free(); err != nil {
		m.logger.Warn("failed to free surface", "error", err)
	}

	err := m.surface.Allocate(mode)
	if err == nil {
		m.notifier.Notify(EventReset)
		return nil
	}
	m.logger.Error("failed to allocate surface", "mode", mode.String(), "error", err)

	if rerr := m.conn.SetMode(prev); rerr != nil {
		m.logger.Error("failed to restore previous mode", "mode", prev.String(), "error", rerr)
		m.setState(StateConnected)
		return errors.Join(err, rerr)
	}
	if aerr := m.surface.Allocate(prev); aerr != nil {
		m.logger.Error("failed to restore surface", "mode", prev.String(), "error", aerr)
		m.setState(StateConnected)
		return errors.Join(err, aerr)
	}
	m.notifier.Notify(EventReset)
	return err
}

// UpdateResolutions publishes the desktop resolution and the mode catalog.
// A failed or empty query leaves the previously published catalog intact.
func (m *Manager) UpdateResolutions() {
	if m.state == StateUninitialized {
		m.logger.Warn("cannot update resolutions without a display connection")
		return
	}

	desktop := m.catalog.CurrentMode()
	if desktop.IsZero() {
		hw, err := m.catalog.HardwareMode()
		if err != nil {
			m.logger.Warn("failed to read current hardware mode", "error", err)
		}
		desktop = hw
	}
	if !desktop.IsZero() {
		m.registry.UpdateDesktopResolution(desktop.Screen, desktop.Width, desktop.Height, desktop.RefreshRate)
	}

	modes, err := m.catalog.Refresh()
	switch {
	case err != nil:
		m.logger.Warn("failed to get resolutions", "error", err)
	case len(modes) == 0:
		m.logger.Warn("failed to get resolutions", "error", "no modes reported")
	default:
		m.registry.ClearCustomResolutions()
		for _, mode := range modes {
			m.overscan.ResetOverscan(mode)
			m.registry.AddResolution(mode)
			m.logger.Log(context.Background(), logging.LevelNotice, "found resolution",
				"width", mode.Width,
				"height", mode.Height,
				"screen", mode.Screen,
				"screen_width", mode.ScreenWidth,
				"screen_height", mode.ScreenHeight,
				"interlaced", mode.Interlaced,
				"refresh_hz", mode.RefreshRate)
		}
		m.published = slices.Clone(modes)
	}

	m.registry.ApplyCalibrations()
}

// FlipPage presents the current back buffer.
func (m *Manager) FlipPage() error {
	if m.state != StateWindowActive {
		return fmt.Errorf("%w: flip in state %s", ErrInvalidState, m.state)
	}
	if err := m.pump.Flip(m.surface); err != nil {
		m.logger.Error("page flip failed", "error", err)
		return err
	}
	return nil
}

// WaitVBlank blocks until the next vertical blank.
func (m *Manager) WaitVBlank() error {
	if m.state == StateUninitialized {
		return fmt.Errorf("%w: vblank in state %s", ErrInvalidState, m.state)
	}
	return m.pump.WaitVBlank()
}

// Hide is unsupported and always reports false.
func (m *Manager) Hide() bool {
	return false
}

// Show always succeeds.
func (m *Manager) Show(raise bool) bool {
	return true
}

// Register adds a lifecycle observer. Safe for concurrent use.
func (m *Manager) Register(r Resource) {
	m.notifier.Register(r)
}

// Unregister removes a lifecycle observer. Safe for concurrent use.
func (m *Manager) Unregister(r Resource) {
	m.notifier.Unregister(r)
}

// Notify dispatches ev to every observer. Safe for concurrent use.
func (m *Manager) Notify(ev Event) {
	m.logger.Debug("notifying display resources", "event", ev.String(), "resources", m.notifier.Len())
	m.notifier.Notify(ev)
}

// Resources returns how many observers are registered. Safe for
// concurrent use.
func (m *Manager) Resources() int {
	return m.notifier.Len()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// CurrentMode returns the committed mode.
func (m *Manager) CurrentMode() Mode {
	return m.catalog.CurrentMode()
}

// Modes returns a copy of the last published catalog.
func (m *Manager) Modes() []Mode {
	return slices.Clone(m.published)
}

// Catalog exposes the mode catalog for direct queries.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Frames returns the number of acknowledged page flips.
func (m *Manager) Frames() uint64 {
	return m.pump.Frames()
}

// WindowName returns the name given to the active window.
func (m *Manager) WindowName() string {
	return m.windowName
}

// FullScreen reports whether the active window was created fullscreen.
func (m *Manager) FullScreen() bool {
	return m.fullScreen
}

func (m *Manager) setState(to State) {
	from := m.state
	m.state = to
	if from != to && m.onStateChange != nil {
		m.onStateChange(from, to)
	}
}

type nopRegistry struct{}

func (nopRegistry) ClearCustomResolutions()                        {}
func (nopRegistry) AddResolution(Mode)                             {}
func (nopRegistry) UpdateDesktopResolution(int, int, int, float64) {}
func (nopRegistry) ApplyCalibrations()                             {}

type nopOverscan struct{}

func (nopOverscan) ResetOverscan(Mode) {}
