package display

import (
	"fmt"
	"log/slog"
)

// Connection owns the single open handle to a Device. It is not safe for
// concurrent use; the Manager serialises access.
type Connection struct {
	dev    Device
	logger *slog.Logger

	open      bool
	active    Mode
	committed bool
	surfaces  int
}

// NewConnection wraps dev. The device is not opened until Open.
func NewConnection(dev Device, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{dev: dev, logger: logger}
}

// Open acquires the device handle.
func (c *Connection) Open() error {
	if c.open {
		return nil
	}
	if err := c.dev.Open(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	c.open = true
	c.active = Mode{}
	c.committed = false
	return nil
}

// Close releases the handle. Closing an already closed connection is a
// no-op. Every surface must be freed first.
func (c *Connection) Close() error {
	if !c.open {
		return nil
	}
	if c.surfaces > 0 {
		panic("display: connection closed with a live surface")
	}
	c.open = false
	c.active = Mode{}
	c.committed = false
	if err := c.dev.Close(); err != nil {
		c.logger.Warn("device close failed", "error", err)
		return err
	}
	return nil
}

// IsOpen reports whether the handle is valid.
func (c *Connection) IsOpen() bool {
	return c.open
}

// SetMode commits m to the hardware. The active mode only changes when the
// device accepts m.
func (c *Connection) SetMode(m Mode) error {
	if !c.open {
		return fmt.Errorf("%w: connection not open", ErrModeSet)
	}
	if err := c.dev.SetMode(m); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrModeSet, m, err)
	}
	c.active = m
	c.committed = true
	return nil
}

// Active returns the committed mode and whether one exists.
func (c *Connection) Active() (Mode, bool) {
	return c.active, c.committed
}

// Device returns the wrapped device.
func (c *Connection) Device() Device {
	return c.dev
}

func (c *Connection) attachSurface() { c.surfaces++ }
func (c *Connection) detachSurface() { c.surfaces-- }
