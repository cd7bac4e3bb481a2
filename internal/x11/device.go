package x11

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/vidout/internal/display"
)

// Device drives a RandR output on an X server. Buffers are pixmaps, a page
// flip copies the pixmap onto an override-redirect window and is
// acknowledged once the server has processed the copy. The X server exposes
// no vblank event, so vblank is paced from the committed refresh rate.
type Device struct {
	display    string
	xauthority string
	logger     *slog.Logger

	mu      sync.Mutex
	conn    *Connection
	win     xproto.Window
	gc      xproto.Gcontext
	pixmaps map[uint32]*pixmap
	current display.Mode
	epoch   time.Time
	hotplug chan struct{}
	stop    chan struct{}
	events  sync.WaitGroup
}

var (
	_ display.Device        = (*Device)(nil)
	_ display.HotplugSource = (*Device)(nil)
)

var errNotOpen = errors.New("x11 device not open")

type pixmap struct {
	id     xproto.Pixmap
	width  int
	height int
}

func (p *pixmap) ID() uint32  { return uint32(p.id) }
func (p *pixmap) Width() int  { return p.width }
func (p *pixmap) Height() int { return p.height }

// NewDevice returns a closed device for the given X display.
func NewDevice(displayName, xauthority string, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		display:    displayName,
		xauthority: xauthority,
		logger:     logger.With("component", "x11"),
		pixmaps:    make(map[uint32]*pixmap),
		hotplug:    make(chan struct{}, 1),
	}
}

// Open connects to the X server, creates the presentation window and starts
// listening for output changes.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return fmt.Errorf("x11 device already open")
	}

	conn, err := NewConnection(d.display, d.xauthority)
	if err != nil {
		return err
	}
	xc := conn.XUtil.Conn()
	screen := conn.XUtil.Screen()

	if err := randr.SelectInputChecked(xc, conn.Root,
		randr.NotifyMaskScreenChange|randr.NotifyMaskOutputChange).Check(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to select randr events: %w", err)
	}

	win, err := xproto.NewWindowId(xc)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to allocate window id: %w", err)
	}
	err = xproto.CreateWindowChecked(xc, screen.RootDepth, win, conn.Root,
		0, 0, screen.WidthInPixels, screen.HeightInPixels, 0,
		xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwBackPixel|xproto.CwOverrideRedirect, []uint32{0, 1}).Check()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create window: %w", err)
	}

	gc, err := xproto.NewGcontextId(xc)
	if err != nil {
		xproto.DestroyWindow(xc, win)
		conn.Close()
		return fmt.Errorf("failed to allocate graphics context id: %w", err)
	}
	xproto.CreateGC(xc, gc, xproto.Drawable(win), xproto.GcGraphicsExposures, []uint32{0})
	xproto.MapWindow(xc, win)

	d.conn = conn
	d.win = win
	d.gc = gc
	d.epoch = time.Now()
	d.stop = make(chan struct{})

	d.events.Add(1)
	go d.eventLoop(conn, d.stop)

	d.logger.Debug("connected to X server", "display", d.display)
	return nil
}

// eventLoop forwards RandR change notifications until the connection closes.
func (d *Device) eventLoop(conn *Connection, stop <-chan struct{}) {
	defer d.events.Done()
	for {
		ev, xerr := conn.XUtil.Conn().WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		if xerr != nil {
			d.logger.Debug("x11 error event", "error", xerr)
			continue
		}
		switch ev.(type) {
		case randr.ScreenChangeNotifyEvent, randr.NotifyEvent:
			select {
			case d.hotplug <- struct{}{}:
			default:
			}
		}
	}
}

// Close destroys every X resource and disconnects.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.conn == nil {
		d.mu.Unlock()
		return nil
	}
	xc := d.conn.XUtil.Conn()
	for id, p := range d.pixmaps {
		xproto.FreePixmap(xc, p.id)
		delete(d.pixmaps, id)
	}
	xproto.FreeGC(xc, d.gc)
	xproto.DestroyWindow(xc, d.win)
	close(d.stop)
	d.conn.Close()
	d.conn = nil
	d.mu.Unlock()

	d.events.Wait()
	return nil
}

// Hotplug delivers output changes reported by RandR.
func (d *Device) Hotplug() <-chan struct{} {
	return d.hotplug
}

func (d *Device) resources() (*Resources, error) {
	if d.conn == nil {
		return nil, errNotOpen
	}
	return d.conn.GetResources()
}

// Modes lists the modes of every connected output.
func (d *Device) Modes() ([]display.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.resources()
	if err != nil {
		return nil, err
	}
	if len(res.Outputs) == 0 {
		return nil, display.ErrNoOutputs
	}
	var modes []display.Mode
	for _, out := range res.Outputs {
		for _, om := range out.Modes {
			modes = append(modes, om.Mode)
		}
	}
	return modes, nil
}

// CurrentMode returns the mode scanned out by the CRTC of the output last
// set with SetMode, or of the active output before that.
func (d *Device) CurrentMode() (display.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.resources()
	if err != nil {
		return display.Mode{}, err
	}
	out, ok := res.Committed(d.current)
	if !ok {
		return display.Mode{}, display.ErrNoOutputs
	}
	if out.Crtc == 0 {
		return display.Mode{}, fmt.Errorf("output %s is not driven by a crtc", out.Name)
	}
	crtc, err := randr.GetCrtcInfo(d.conn.XUtil.Conn(), out.Crtc, res.ConfigTimestamp).Reply()
	if err != nil {
		return display.Mode{}, fmt.Errorf("failed to get crtc info: %w", err)
	}
	for _, om := range out.Modes {
		if om.ID == crtc.Mode {
			d.current = om.Mode
			return om.Mode, nil
		}
	}
	return display.Mode{}, fmt.Errorf("crtc mode %d not offered by output %s", crtc.Mode, out.Name)
}

// SetMode reprograms the CRTC of m's output. A refused configuration leaves
// the previous mode in place.
func (d *Device) SetMode(m display.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.resources()
	if err != nil {
		return err
	}
	out, modeID, ok := res.Lookup(m)
	if !ok {
		return fmt.Errorf("mode %s not offered by any output", m)
	}
	if out.Crtc == 0 {
		return fmt.Errorf("output %s is not driven by a crtc", out.Name)
	}

	xc := d.conn.XUtil.Conn()
	crtc, err := randr.GetCrtcInfo(xc, out.Crtc, res.ConfigTimestamp).Reply()
	if err != nil {
		return fmt.Errorf("failed to get crtc info: %w", err)
	}
	rotation := crtc.Rotation
	if rotation == 0 {
		rotation = randr.RotationRotate0
	}
	reply, err := randr.SetCrtcConfig(xc, out.Crtc, xproto.TimeCurrentTime, res.ConfigTimestamp,
		crtc.X, crtc.Y, modeID, rotation, []randr.Output{out.ID}).Reply()
	if err != nil {
		return fmt.Errorf("set crtc config: %w", err)
	}
	if reply.Status != randr.SetConfigSuccess {
		return fmt.Errorf("set crtc config refused with status %d", reply.Status)
	}

	xproto.ConfigureWindow(xc, d.win, xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(m.Width), uint32(m.Height)})
	d.current = m
	return nil
}

// AllocateBuffer creates a pixmap of the root depth.
func (d *Device) AllocateBuffer(width, height int) (display.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil, errNotOpen
	}
	if width <= 0 || height <= 0 || width > 0xffff || height > 0xffff {
		return nil, fmt.Errorf("invalid buffer size %dx%d", width, height)
	}

	xc := d.conn.XUtil.Conn()
	pid, err := xproto.NewPixmapId(xc)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate pixmap id: %w", err)
	}
	err = xproto.CreatePixmapChecked(xc, d.conn.XUtil.Screen().RootDepth, pid,
		xproto.Drawable(d.conn.Root), uint16(width), uint16(height)).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create pixmap: %w", err)
	}

	p := &pixmap{id: pid, width: width, height: height}
	d.pixmaps[p.ID()] = p
	return p, nil
}

// FreeBuffer frees a pixmap.
func (d *Device) FreeBuffer(b display.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pixmaps[b.ID()]
	if !ok {
		return fmt.Errorf("pixmap %d not allocated", b.ID())
	}
	delete(d.pixmaps, b.ID())
	if d.conn != nil {
		xproto.FreePixmap(d.conn.XUtil.Conn(), p.id)
	}
	return nil
}

// PageFlip copies b onto the window. The ack fires after a round trip, when
// the server has executed the copy.
func (d *Device) PageFlip(b display.Buffer) (<-chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil, errNotOpen
	}
	p, ok := d.pixmaps[b.ID()]
	if !ok {
		return nil, fmt.Errorf("pixmap %d not allocated", b.ID())
	}

	xc := d.conn.XUtil.Conn()
	xproto.CopyArea(xc, xproto.Drawable(p.id), xproto.Drawable(d.win), d.gc,
		0, 0, 0, 0, uint16(p.width), uint16(p.height))

	ack := make(chan error, 1)
	cookie := xproto.GetInputFocus(xc)
	go func() {
		_, err := cookie.Reply()
		ack <- err
	}()
	return ack, nil
}

// WaitVBlank sleeps until the next refresh boundary of the current mode.
func (d *Device) WaitVBlank() error {
	d.mu.Lock()
	if d.conn == nil {
		d.mu.Unlock()
		return errNotOpen
	}
	rate := d.current.RefreshRate
	elapsed := time.Since(d.epoch)
	d.mu.Unlock()

	if rate <= 0 {
		rate = 60
	}
	period := time.Duration(float64(time.Second) / rate)
	time.Sleep(period - elapsed%period)
	return nil
}
