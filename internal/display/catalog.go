package display

import "fmt"

// Catalog queries the available output modes.
type Catalog struct {
	conn *Connection
}

// NewCatalog returns a catalog reading through conn.
func NewCatalog(conn *Connection) *Catalog {
	return &Catalog{conn: conn}
}

// Refresh queries every mode on every connected output, in hardware order.
// A successful query with no modes yields an empty slice and no error.
func (c *Catalog) Refresh() ([]Mode, error) {
	if !c.conn.IsOpen() {
		return nil, fmt.Errorf("%w: connection not open", ErrQuery)
	}
	modes, err := c.conn.Device().Modes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	if modes == nil {
		modes = []Mode{}
	}
	return modes, nil
}

// CurrentMode returns the committed mode, or the zero Mode before the first
// successful mode-set.
func (c *Catalog) CurrentMode() Mode {
	m, _ := c.conn.Active()
	return m
}

// HardwareMode returns what the hardware is scanning out right now, which
// before any commit is whatever the console or boot loader left behind.
func (c *Catalog) HardwareMode() (Mode, error) {
	if !c.conn.IsOpen() {
		return Mode{}, fmt.Errorf("%w: connection not open", ErrQuery)
	}
	m, err := c.conn.Device().CurrentMode()
	if err != nil {
		return Mode{}, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return m, nil
}
