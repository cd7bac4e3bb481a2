package display

import (
	"fmt"
	"sync/atomic"
)

// Pump drives the page-flip handshake. At most one flip is outstanding:
// a new Flip first waits for the previous acknowledgement, so frames are
// presented in submission order and none are dropped.
//
// Pump is owned by the render goroutine; only Frames is safe to call from
// elsewhere.
type Pump struct {
	conn *Connection

	pending <-chan error
	fault   error
	frames  atomic.Uint64
}

// NewPump returns a pump presenting through conn.
func NewPump(conn *Connection) *Pump {
	return &Pump{conn: conn}
}

// Flip submits the surface's back buffer for the next vblank and rotates
// the ring. Any device or acknowledgement failure is a presentation fault;
// once faulted, the pump keeps returning the same error.
func (p *Pump) Flip(s *Surface) error {
	if p.fault != nil {
		return p.fault
	}
	if err := p.Drain(); err != nil {
		return err
	}
	if !p.conn.IsOpen() || !s.Live() {
		return p.latch(fmt.Errorf("%w: no live surface", ErrPresentation))
	}

	ack, err := p.conn.Device().PageFlip(s.Back())
	if err != nil {
		return p.latch(fmt.Errorf("%w: page flip: %w", ErrPresentation, err))
	}
	p.pending = ack
	s.Advance()
	return nil
}

// Drain blocks until the outstanding flip, if any, is acknowledged.
func (p *Pump) Drain() error {
	if p.fault != nil {
		return p.fault
	}
	if p.pending == nil {
		return nil
	}
	ack := p.pending
	p.pending = nil

	err, ok := <-ack
	if !ok {
		return p.latch(fmt.Errorf("%w: flip acknowledgement lost", ErrPresentation))
	}
	if err != nil {
		return p.latch(fmt.Errorf("%w: flip: %w", ErrPresentation, err))
	}
	p.frames.Add(1)
	return nil
}

// WaitVBlank blocks until the next vertical blank.
func (p *Pump) WaitVBlank() error {
	if !p.conn.IsOpen() {
		return fmt.Errorf("%w: connection not open", ErrPresentation)
	}
	if err := p.conn.Device().WaitVBlank(); err != nil {
		return fmt.Errorf("%w: vblank: %w", ErrPresentation, err)
	}
	return nil
}

// Frames returns how many flips the hardware has acknowledged.
func (p *Pump) Frames() uint64 {
	return p.frames.Load()
}

// Fault returns the latched presentation fault, if any.
func (p *Pump) Fault() error {
	return p.fault
}

// Reset clears a latched fault and any pending flip. Used when a fresh
// connection is opened.
func (p *Pump) Reset() {
	p.pending = nil
	p.fault = nil
}

func (p *Pump) latch(err error) error {
	p.fault = err
	return err
}
