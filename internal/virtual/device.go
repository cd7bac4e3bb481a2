// Package virtual provides a headless display device. It keeps a
// configurable mode list, paces vblank from the refresh rate of the
// committed mode and acknowledges page flips asynchronously. Every hardware
// operation can be made to fail, which makes it the fake used by tests.
package virtual

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1broseidon/vidout/internal/display"
)

// Config describes the virtual hardware.
type Config struct {
	// Modes is the catalog in the order the hardware reports it.
	Modes []display.Mode
	// Current is the mode scanned out before any SetMode.
	Current display.Mode
	// AckDelay is how long a page flip takes to be acknowledged.
	AckDelay time.Duration
	// NoOutputs makes Modes report ErrNoOutputs.
	NoOutputs bool
}

// Stats counts device calls.
type Stats struct {
	Opens    int
	Closes   int
	Allocs   int
	Frees    int
	Flips    int
	VBlanks  int
	Overlaps int
}

type buffer struct {
	id     uint32
	width  int
	height int
}

func (b *buffer) ID() uint32  { return b.id }
func (b *buffer) Width() int  { return b.width }
func (b *buffer) Height() int { return b.height }

// Device is a virtual display.Device. Its fault fields may be set between
// calls to inject failures.
type Device struct {
	// OpenErr, AllocErr, FlipErr and AckErr fail the matching operation.
	OpenErr  error
	AllocErr error
	FlipErr  error
	AckErr   error
	// AllocFailAfter fails the allocation after this many successes when > 0.
	AllocFailAfter int
	// Reject lists modes SetMode refuses.
	Reject []display.Mode

	mu        sync.Mutex
	cfg       Config
	open      bool
	current   display.Mode
	nextID    uint32
	live      map[uint32]*buffer
	presented []uint32
	pending   bool
	stats     Stats
	epoch     time.Time
	hotplug   chan struct{}
}

var (
	_ display.Device        = (*Device)(nil)
	_ display.HotplugSource = (*Device)(nil)
)

// ErrRejected is returned by SetMode for modes listed in Reject or absent
// from the catalog.
var ErrRejected = errors.New("mode rejected by virtual hardware")

// New returns a closed virtual device.
func New(cfg Config) *Device {
	return &Device{
		cfg:     cfg,
		current: cfg.Current,
		live:    make(map[uint32]*buffer),
		hotplug: make(chan struct{}, 1),
	}
}

// Open opens the device.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return d.OpenErr
	}
	if d.open {
		return fmt.Errorf("virtual device already open")
	}
	d.open = true
	d.epoch = time.Now()
	d.stats.Opens++
	return nil
}

// Close closes the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	d.stats.Closes++
	return nil
}

// Modes returns the configured catalog.
func (d *Device) Modes() ([]display.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, fmt.Errorf("virtual device not open")
	}
	if d.cfg.NoOutputs {
		return nil, display.ErrNoOutputs
	}
	out := make([]display.Mode, len(d.cfg.Modes))
	copy(out, d.cfg.Modes)
	return out, nil
}

// CurrentMode returns the scanned-out mode.
func (d *Device) CurrentMode() (display.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return display.Mode{}, fmt.Errorf("virtual device not open")
	}
	return d.current, nil
}

// SetMode commits m if the catalog holds an identical mode and m is not
// rejected.
func (d *Device) SetMode(m display.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return fmt.Errorf("virtual device not open")
	}
	for _, r := range d.Reject {
		if r.Equal(m) {
			return fmt.Errorf("%w: %s", ErrRejected, m)
		}
	}
	if len(d.cfg.Modes) > 0 && !inCatalog(d.cfg.Modes, m) {
		return fmt.Errorf("%w: %s not in catalog", ErrRejected, m)
	}
	d.current = m
	return nil
}

func inCatalog(modes []display.Mode, m display.Mode) bool {
	for _, c := range modes {
		if c.Equal(m) {
			return true
		}
	}
	return false
}

// AllocateBuffer allocates a virtual buffer.
func (d *Device) AllocateBuffer(width, height int) (display.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, fmt.Errorf("virtual device not open")
	}
	if d.AllocErr != nil {
		return nil, d.AllocErr
	}
	if d.AllocFailAfter > 0 && len(d.live) >= d.AllocFailAfter {
		return nil, fmt.Errorf("virtual allocator out of memory")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid buffer size %dx%d", width, height)
	}
	d.nextID++
	b := &buffer{id: d.nextID, width: width, height: height}
	d.live[b.id] = b
	d.stats.Allocs++
	return b, nil
}

// FreeBuffer releases a buffer.
func (d *Device) FreeBuffer(b display.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[b.ID()]; !ok {
		return fmt.Errorf("buffer %d not allocated", b.ID())
	}
	delete(d.live, b.ID())
	d.stats.Frees++
	return nil
}

// PageFlip schedules b and acknowledges it after AckDelay. A flip issued
// while another is unacknowledged is counted in Stats.Overlaps.
func (d *Device) PageFlip(b display.Buffer) (<-chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, fmt.Errorf("virtual device not open")
	}
	if d.FlipErr != nil {
		return nil, d.FlipErr
	}
	if _, ok := d.live[b.ID()]; !ok {
		return nil, fmt.Errorf("buffer %d not allocated", b.ID())
	}
	if d.pending {
		d.stats.Overlaps++
	}
	d.pending = true
	d.stats.Flips++

	ack := make(chan error, 1)
	ackErr := d.AckErr
	id := b.ID()
	delay := d.cfg.AckDelay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		d.mu.Lock()
		d.pending = false
		if ackErr == nil {
			d.presented = append(d.presented, id)
		}
		d.mu.Unlock()
		ack <- ackErr
	}()
	return ack, nil
}

// WaitVBlank sleeps until the next refresh boundary of the current mode.
func (d *Device) WaitVBlank() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return fmt.Errorf("virtual device not open")
	}
	period := framePeriod(d.current.RefreshRate)
	elapsed := time.Since(d.epoch)
	d.stats.VBlanks++
	d.mu.Unlock()

	time.Sleep(period - elapsed%period)
	return nil
}

// Hotplug delivers simulated output changes.
func (d *Device) Hotplug() <-chan struct{} {
	return d.hotplug
}

// TriggerHotplug simulates an output change and swaps the catalog.
func (d *Device) TriggerHotplug(modes []display.Mode) {
	d.mu.Lock()
	d.cfg.Modes = modes
	d.cfg.NoOutputs = len(modes) == 0
	d.mu.Unlock()

	select {
	case d.hotplug <- struct{}{}:
	default:
	}
}

// SetNoOutputs toggles the zero-outputs condition.
func (d *Device) SetNoOutputs(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.NoOutputs = v
}

// Stats returns a snapshot of the call counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Presented returns the buffer ids in the order their flips completed.
func (d *Device) Presented() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint32, len(d.presented))
	copy(out, d.presented)
	return out
}

// LiveBuffers returns how many buffers are allocated.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Current returns the scanned-out mode without requiring the device open.
func (d *Device) Current() display.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func framePeriod(rate float64) time.Duration {
	if rate <= 0 {
		rate = 60
	}
	return time.Duration(float64(time.Second) / rate)
}

// DefaultConfig is a single 1080p output offering a few common rates.
func DefaultConfig() Config {
	modes := []display.Mode{
		{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, RefreshRate: 60},
		{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, RefreshRate: 50},
		{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, RefreshRate: 23.976},
		{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, Interlaced: true, RefreshRate: 50},
		{Width: 1280, Height: 720, ScreenWidth: 1280, ScreenHeight: 720, RefreshRate: 60},
	}
	return Config{
		Modes:    modes,
		Current:  modes[0],
		AckDelay: 2 * time.Millisecond,
	}
}
