package display_test

import (
	"errors"
	"testing"
	"time"

	"github.com/1broseidon/vidout/internal/display"
	"github.com/1broseidon/vidout/internal/logging"
	"github.com/1broseidon/vidout/internal/virtual"
)

var (
	mode1080p60 = display.Mode{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, RefreshRate: 60}
	mode1080p50 = display.Mode{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, RefreshRate: 50}
	mode720p60  = display.Mode{Width: 1280, Height: 720, ScreenWidth: 1280, ScreenHeight: 720, RefreshRate: 60}
)

type recordingRegistry struct {
	calls   []string
	added   []display.Mode
	desktop display.Mode
}

func (r *recordingRegistry) ClearCustomResolutions() {
	r.calls = append(r.calls, "clear")
	r.added = nil
}

func (r *recordingRegistry) AddResolution(m display.Mode) {
	r.calls = append(r.calls, "add")
	r.added = append(r.added, m)
}

func (r *recordingRegistry) UpdateDesktopResolution(screen, width, height int, refresh float64) {
	r.calls = append(r.calls, "desktop")
	r.desktop = display.Mode{Screen: screen, Width: width, Height: height, RefreshRate: refresh}
}

func (r *recordingRegistry) ApplyCalibrations() {
	r.calls = append(r.calls, "calibrate")
}

type eventLog struct {
	events []display.Event
}

func (l *eventLog) OnDisplayEvent(ev display.Event) {
	l.events = append(l.events, ev)
}

func newVirtual() *virtual.Device {
	cfg := virtual.DefaultConfig()
	cfg.AckDelay = time.Millisecond
	return virtual.New(cfg)
}

func newManager(dev display.Device, opts display.Options) *display.Manager {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return display.NewManager(dev, opts)
}

func TestManagerEndToEnd(t *testing.T) {
	dev := newVirtual()
	var states []display.State
	m := newManager(dev, display.Options{
		OnStateChange: func(from, to display.State) {
			if len(states) == 0 {
				states = append(states, from)
			}
			states = append(states, to)
		},
	})

	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := m.FlipPage(); err != nil {
			t.Fatalf("FlipPage %d: %v", i, err)
		}
	}
	if err := m.DestroyWindow(); err != nil {
		t.Fatalf("DestroyWindow: %v", err)
	}
	if err := m.DestroyWindowSystem(); err != nil {
		t.Fatalf("DestroyWindowSystem: %v", err)
	}

	want := []display.State{
		display.StateUninitialized,
		display.StateConnected,
		display.StateWindowActive,
		display.StateConnected,
		display.StateUninitialized,
	}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}

	st := dev.Stats()
	if st.Opens != 1 || st.Closes != 1 {
		t.Fatalf("open/close = %d/%d, want 1/1", st.Opens, st.Closes)
	}
	// One surface of two buffers: one allocate/free pair at surface level.
	if st.Allocs != 2 || st.Frees != 2 {
		t.Fatalf("allocs/frees = %d/%d, want 2/2", st.Allocs, st.Frees)
	}
	if st.Flips != 3 || m.Frames() != 3 {
		t.Fatalf("flips = %d, frames = %d, want 3", st.Flips, m.Frames())
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d buffers", dev.LiveBuffers())
	}
}

func TestCreateDestroyCyclesBalance(t *testing.T) {
	dev := newVirtual()
	m := newManager(dev, display.Options{Buffers: 3})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}

	const cycles = 25
	for i := 0; i < cycles; i++ {
		if err := m.CreateNewWindow("cycle", false, mode1080p60); err != nil {
			t.Fatalf("cycle %d create: %v", i, err)
		}
		if err := m.DestroyWindow(); err != nil {
			t.Fatalf("cycle %d destroy: %v", i, err)
		}
	}

	if m.State() != display.StateConnected {
		t.Fatalf("state = %s, want connected", m.State())
	}
	st := dev.Stats()
	if st.Allocs != cycles*3 || st.Frees != st.Allocs {
		t.Fatalf("allocs/frees = %d/%d", st.Allocs, st.Frees)
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d buffers", dev.LiveBuffers())
	}
}

func TestSetFullScreenRejectedKeepsMode(t *testing.T) {
	dev := newVirtual()
	dev.Reject = []display.Mode{mode720p60}
	m := newManager(dev, display.Options{})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}
	if !dev.Current().Equal(mode1080p60) {
		t.Fatalf("hardware mode before = %v", dev.Current())
	}
	events := &eventLog{}
	m.Register(events)
	allocs := dev.Stats().Allocs

	err := m.SetFullScreen(true, mode720p60, false)
	if !errors.Is(err, display.ErrModeSet) {
		t.Fatalf("expected ErrModeSet, got %v", err)
	}
	if !errors.Is(err, virtual.ErrRejected) {
		t.Fatalf("expected device cause in %v", err)
	}
	if !m.CurrentMode().Equal(mode1080p60) {
		t.Fatalf("CurrentMode = %v after rejected switch", m.CurrentMode())
	}
	if !dev.Current().Equal(mode1080p60) {
		t.Fatalf("hardware mode after = %v", dev.Current())
	}
	if m.State() != display.StateWindowActive {
		t.Fatalf("state = %s", m.State())
	}
	if dev.Stats().Allocs != allocs {
		t.Fatalf("rejected switch reallocated buffers")
	}
	if len(events.events) != 0 {
		t.Fatalf("unexpected events %v", events.events)
	}
}

func TestSetFullScreenSameSizeKeepsBuffers(t *testing.T) {
	dev := newVirtual()
	m := newManager(dev, display.Options{})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}
	events := &eventLog{}
	m.Register(events)

	if err := m.SetFullScreen(true, mode1080p50, false); err != nil {
		t.Fatalf("SetFullScreen: %v", err)
	}
	if st := dev.Stats(); st.Allocs != 2 || st.Frees != 0 {
		t.Fatalf("allocs/frees = %d/%d, want 2/0", st.Allocs, st.Frees)
	}
	if !m.CurrentMode().Equal(mode1080p50) {
		t.Fatalf("CurrentMode = %v", m.CurrentMode())
	}
	if len(events.events) != 1 || events.events[0] != display.EventModeChanged {
		t.Fatalf("events = %v", events.events)
	}
	if err := m.FlipPage(); err != nil {
		t.Fatalf("FlipPage after switch: %v", err)
	}
}

func TestSetFullScreenReallocates(t *testing.T) {
	dev := newVirtual()
	m := newManager(dev, display.Options{})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}
	if err := m.FlipPage(); err != nil {
		t.Fatalf("FlipPage: %v", err)
	}
	events := &eventLog{}
	m.Register(events)

	if err := m.SetFullScreen(true, mode720p60, true); err != nil {
		t.Fatalf("SetFullScreen: %v", err)
	}
	want := []display.Event{display.EventLost, display.EventReset, display.EventModeChanged}
	if len(events.events) != len(want) {
		t.Fatalf("events = %v, want %v", events.events, want)
	}
	for i := range want {
		if events.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events.events, want)
		}
	}
	st := dev.Stats()
	if st.Allocs != 4 || st.Frees != 2 || dev.LiveBuffers() != 2 {
		t.Fatalf("allocs/frees/live = %d/%d/%d", st.Allocs, st.Frees, dev.LiveBuffers())
	}
	if st.Overlaps != 0 {
		t.Fatalf("buffers freed with a flip in flight")
	}
	if m.Frames() != 1 {
		t.Fatalf("pending flip was not drained before reallocation")
	}
}

func TestSetFullScreenFlipFaultCommitsNothing(t *testing.T) {
	dev := newVirtual()
	m := newManager(dev, display.Options{})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}
	dev.AckErr = errors.New("ack lost")
	if err := m.FlipPage(); err != nil {
		t.Fatalf("FlipPage: %v", err)
	}
	events := &eventLog{}
	m.Register(events)
	allocs := dev.Stats().Allocs

	err := m.SetFullScreen(true, mode720p60, false)
	if !errors.Is(err, display.ErrPresentation) {
		t.Fatalf("expected ErrPresentation, got %v", err)
	}
	if !m.CurrentMode().Equal(mode1080p60) || !dev.Current().Equal(mode1080p60) {
		t.Fatalf("mode changed on failed switch: manager %v, hardware %v", m.CurrentMode(), dev.Current())
	}
	if len(events.events) != 0 {
		t.Fatalf("unexpected events %v", events.events)
	}
	if dev.Stats().Allocs != allocs || dev.LiveBuffers() != 2 {
		t.Fatalf("surface touched: allocs %d -> %d, live %d", allocs, dev.Stats().Allocs, dev.LiveBuffers())
	}
	if m.State() != display.StateWindowActive {
		t.Fatalf("state = %s", m.State())
	}
}

// failingAllocator refuses buffers of one width so a mode switch can fail
// while restoring the previous mode still works.
type failingAllocator struct {
	*virtual.Device
	width int
}

func (f *failingAllocator) AllocateBuffer(width, height int) (display.Buffer, error) {
	if width == f.width {
		return nil, errors.New("out of video memory")
	}
	return f.Device.AllocateBuffer(width, height)
}

func TestSetFullScreenAllocationFailureRestores(t *testing.T) {
	dev := newVirtual()
	m := newManager(&failingAllocator{Device: dev, width: 1280}, display.Options{})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}

	err := m.SetFullScreen(true, mode720p60, false)
	if !errors.Is(err, display.ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	if m.State() != display.StateWindowActive {
		t.Fatalf("state = %s, want window-active", m.State())
	}
	if !m.CurrentMode().Equal(mode1080p60) || !dev.Current().Equal(mode1080p60) {
		t.Fatalf("previous mode not restored: manager %v, hardware %v", m.CurrentMode(), dev.Current())
	}
	if dev.LiveBuffers() != 2 {
		t.Fatalf("live buffers = %d, want 2", dev.LiveBuffers())
	}
}

func TestCreateNewWindowAllocationFailure(t *testing.T) {
	dev := newVirtual()
	dev.AllocFailAfter = 1
	m := newManager(dev, display.Options{Buffers: 3})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}

	err := m.CreateNewWindow("vidout", true, mode1080p60)
	if !errors.Is(err, display.ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	if m.State() != display.StateConnected {
		t.Fatalf("state = %s, want connected", m.State())
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("partial surface left live: %d buffers", dev.LiveBuffers())
	}
	if err := m.DestroyWindowSystem(); err != nil {
		t.Fatalf("DestroyWindowSystem: %v", err)
	}
}

func TestInitWindowSystemConnectionError(t *testing.T) {
	dev := newVirtual()
	dev.OpenErr = errors.New("no display")
	m := newManager(dev, display.Options{})

	if err := m.InitWindowSystem(); !errors.Is(err, display.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if m.State() != display.StateUninitialized {
		t.Fatalf("state = %s", m.State())
	}
}

func TestLifecycleRejectsWrongState(t *testing.T) {
	m := newManager(newVirtual(), display.Options{})

	if err := m.CreateNewWindow("x", true, mode1080p60); !errors.Is(err, display.ErrInvalidState) {
		t.Fatalf("create before init: %v", err)
	}
	if err := m.FlipPage(); !errors.Is(err, display.ErrInvalidState) {
		t.Fatalf("flip before window: %v", err)
	}
	if err := m.WaitVBlank(); !errors.Is(err, display.ErrInvalidState) {
		t.Fatalf("vblank before init: %v", err)
	}
	if err := m.DestroyWindowSystem(); err != nil {
		t.Fatalf("destroy before init should be a no-op: %v", err)
	}
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.InitWindowSystem(); !errors.Is(err, display.ErrInvalidState) {
		t.Fatalf("double init: %v", err)
	}
}

func TestDestroyWindowSystemFromWindowActive(t *testing.T) {
	dev := newVirtual()
	m := newManager(dev, display.Options{})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}
	if err := m.FlipPage(); err != nil {
		t.Fatalf("FlipPage: %v", err)
	}
	if err := m.DestroyWindowSystem(); err != nil {
		t.Fatalf("DestroyWindowSystem: %v", err)
	}
	if m.State() != display.StateUninitialized {
		t.Fatalf("state = %s", m.State())
	}
	if st := dev.Stats(); st.Allocs != st.Frees || st.Closes != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestFlipOrderingWithDelayedAck(t *testing.T) {
	cfg := virtual.DefaultConfig()
	cfg.AckDelay = 15 * time.Millisecond
	dev := virtual.New(cfg)
	m := newManager(dev, display.Options{Buffers: 3})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}

	const frames = 6
	start := time.Now()
	for i := 0; i < frames; i++ {
		if err := m.FlipPage(); err != nil {
			t.Fatalf("FlipPage %d: %v", i, err)
		}
	}
	// Every flip after the first waited for the previous acknowledgement.
	if elapsed := time.Since(start); elapsed < (frames-1)*cfg.AckDelay {
		t.Fatalf("flips did not wait for acknowledgement: %v", elapsed)
	}
	if err := m.DestroyWindow(); err != nil {
		t.Fatalf("DestroyWindow: %v", err)
	}

	st := dev.Stats()
	if st.Overlaps != 0 {
		t.Fatalf("overlapping flips: %d", st.Overlaps)
	}
	want := []uint32{1, 2, 3, 1, 2, 3}
	got := dev.Presented()
	if len(got) != len(want) {
		t.Fatalf("presented = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("presented = %v, want %v", got, want)
		}
	}
	if m.Frames() != frames {
		t.Fatalf("Frames() = %d, want %d", m.Frames(), frames)
	}
}

func TestFlipFaultLatches(t *testing.T) {
	dev := newVirtual()
	m := newManager(dev, display.Options{})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}

	dev.AckErr = errors.New("display fault")
	if err := m.FlipPage(); err != nil {
		t.Fatalf("submission should succeed: %v", err)
	}
	first := m.FlipPage()
	if !errors.Is(first, display.ErrPresentation) {
		t.Fatalf("expected ErrPresentation, got %v", first)
	}
	dev.AckErr = nil
	if second := m.FlipPage(); second != first {
		t.Fatalf("fault not latched: %v", second)
	}
	if dev.Stats().Flips != 1 {
		t.Fatalf("flip submitted after fault")
	}

	// Teardown still frees everything.
	if err := m.DestroyWindowSystem(); err != nil {
		t.Fatalf("DestroyWindowSystem: %v", err)
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d buffers", dev.LiveBuffers())
	}
}

func TestFlipSubmitError(t *testing.T) {
	dev := newVirtual()
	m := newManager(dev, display.Options{})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	if err := m.CreateNewWindow("vidout", true, mode1080p60); err != nil {
		t.Fatalf("CreateNewWindow: %v", err)
	}
	dev.FlipErr = errors.New("crtc busy")
	if err := m.FlipPage(); !errors.Is(err, display.ErrPresentation) {
		t.Fatalf("expected ErrPresentation, got %v", err)
	}
}

func TestUpdateResolutionsPublishes(t *testing.T) {
	dev := newVirtual()
	reg := &recordingRegistry{}
	m := newManager(dev, display.Options{Registry: reg})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}

	m.UpdateResolutions()

	catalog := virtual.DefaultConfig().Modes
	if len(m.Modes()) != len(catalog) || len(reg.added) != len(catalog) {
		t.Fatalf("published %d modes, registry got %d, want %d", len(m.Modes()), len(reg.added), len(catalog))
	}
	// Desktop comes from the hardware before any mode was committed.
	if reg.desktop.Width != 1920 || reg.desktop.Height != 1080 || reg.desktop.RefreshRate != 60 {
		t.Fatalf("desktop = %+v", reg.desktop)
	}
	if reg.calls[0] != "desktop" || reg.calls[1] != "clear" || reg.calls[len(reg.calls)-1] != "calibrate" {
		t.Fatalf("call order = %v", reg.calls)
	}
	for i, mode := range catalog {
		if !reg.added[i].Equal(mode) {
			t.Fatalf("mode %d = %v, want %v (hardware order)", i, reg.added[i], mode)
		}
	}
}

func TestUpdateResolutionsKeepsCatalogWhenEmpty(t *testing.T) {
	dev := newVirtual()
	reg := &recordingRegistry{}
	m := newManager(dev, display.Options{Registry: reg})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	m.UpdateResolutions()
	published := m.Modes()

	// Outputs present but no modes: an empty, successful query.
	dev.TriggerHotplug(nil)
	dev.SetNoOutputs(false)
	modes, err := m.Catalog().Refresh()
	if err != nil {
		t.Fatalf("Refresh with zero modes: %v", err)
	}
	if modes == nil || len(modes) != 0 {
		t.Fatalf("Refresh = %#v, want empty slice", modes)
	}

	reg.calls = nil
	m.UpdateResolutions()
	if len(m.Modes()) != len(published) {
		t.Fatalf("published catalog changed: %d -> %d", len(published), len(m.Modes()))
	}
	for _, c := range reg.calls {
		if c == "clear" || c == "add" {
			t.Fatalf("registry modified on empty catalog: %v", reg.calls)
		}
	}
	if reg.calls[len(reg.calls)-1] != "calibrate" {
		t.Fatalf("calibrations not applied: %v", reg.calls)
	}
}

func TestUpdateResolutionsNoOutputs(t *testing.T) {
	dev := newVirtual()
	m := newManager(dev, display.Options{})
	if err := m.InitWindowSystem(); err != nil {
		t.Fatalf("InitWindowSystem: %v", err)
	}
	m.UpdateResolutions()
	before := len(m.Modes())

	dev.SetNoOutputs(true)
	if _, err := m.Catalog().Refresh(); !errors.Is(err, display.ErrQuery) || !errors.Is(err, display.ErrNoOutputs) {
		t.Fatalf("expected ErrQuery wrapping ErrNoOutputs, got %v", err)
	}
	m.UpdateResolutions()
	if len(m.Modes()) != before {
		t.Fatalf("published catalog changed on query failure")
	}
}

func TestNotifyFromManager(t *testing.T) {
	m := newManager(newVirtual(), display.Options{})
	a, b := &eventLog{}, &eventLog{}
	m.Register(a)
	m.Register(b)
	m.Register(a)
	m.Notify(display.EventLost)
	m.Unregister(a)
	m.Notify(display.EventReset)

	if len(a.events) != 1 || a.events[0] != display.EventLost {
		t.Fatalf("a = %v", a.events)
	}
	if len(b.events) != 2 {
		t.Fatalf("b = %v", b.events)
	}
}

func TestFixedWindowOperations(t *testing.T) {
	m := newManager(newVirtual(), display.Options{})
	if !m.ResizeWindow(640, 480, 0, 0) {
		t.Fatalf("ResizeWindow should report success")
	}
	if m.Hide() {
		t.Fatalf("Hide should report false")
	}
	if !m.Show(true) {
		t.Fatalf("Show should report true")
	}
}

func TestSurfaceDoubleAllocatePanics(t *testing.T) {
	dev := newVirtual()
	conn := display.NewConnection(dev, logging.Discard())
	if err := conn.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := conn.SetMode(mode1080p60); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	s := display.NewSurface(conn, 2)
	if err := s.Allocate(mode1080p60); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double allocate")
		}
		if err := s.Free(); err != nil {
			t.Fatalf("Free: %v", err)
		}
	}()
	_ = s.Allocate(mode1080p60)
}

func TestSurfaceRequiresCommittedMode(t *testing.T) {
	dev := newVirtual()
	conn := display.NewConnection(dev, logging.Discard())
	s := display.NewSurface(conn, 2)
	if err := s.Allocate(mode1080p60); !errors.Is(err, display.ErrAllocation) {
		t.Fatalf("allocate on closed connection: %v", err)
	}
	if err := conn.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Allocate(mode1080p60); !errors.Is(err, display.ErrAllocation) {
		t.Fatalf("allocate before mode-set: %v", err)
	}
	if err := conn.SetMode(mode720p60); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := s.Allocate(mode1080p60); !errors.Is(err, display.ErrAllocation) {
		t.Fatalf("allocate for uncommitted mode: %v", err)
	}
	if err := s.Free(); err != nil {
		t.Fatalf("Free on unallocated surface: %v", err)
	}
}

func TestConnectionCloseWithLiveSurfacePanics(t *testing.T) {
	dev := newVirtual()
	conn := display.NewConnection(dev, logging.Discard())
	if err := conn.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := conn.SetMode(mode1080p60); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	s := display.NewSurface(conn, 2)
	if err := s.Allocate(mode1080p60); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic closing with live surface")
		}
	}()
	_ = conn.Close()
}
