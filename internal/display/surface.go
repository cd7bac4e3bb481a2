package display

import (
	"errors"
	"fmt"
)

// Surface owns the ring of presentable buffers for the active mode.
type Surface struct {
	conn  *Connection
	count int

	bufs []Buffer
	back int
	mode Mode
}

// NewSurface returns an unallocated surface that will hold count buffers
// (2 for double, 3 for triple buffering).
func NewSurface(conn *Connection, count int) *Surface {
	if count < 2 {
		count = 2
	}
	return &Surface{conn: conn, count: count}
}

// Allocate sizes the buffers to mode, which must be the committed mode.
// Allocating a live surface is a logic error.
func (s *Surface) Allocate(mode Mode) error {
	if s.Live() {
		panic("display: surface allocated twice without Free")
	}
	if !s.conn.IsOpen() {
		return fmt.Errorf("%w: connection not open", ErrAllocation)
	}
	active, ok := s.conn.Active()
	if !ok || !active.Equal(mode) {
		return fmt.Errorf("%w: %s is not the committed mode", ErrAllocation, mode)
	}

	dev := s.conn.Device()
	bufs := make([]Buffer, 0, s.count)
	for i := 0; i < s.count; i++ {
		b, err := dev.AllocateBuffer(mode.Width, mode.Height)
		if err != nil {
			var errs []error
			for _, prev := range bufs {
				if ferr := dev.FreeBuffer(prev); ferr != nil {
					errs = append(errs, ferr)
				}
			}
			return fmt.Errorf("%w: buffer %d of %d: %w", ErrAllocation, i+1, s.count, errors.Join(append([]error{err}, errs...)...))
		}
		bufs = append(bufs, b)
	}

	s.bufs = bufs
	s.back = 0
	s.mode = mode
	s.conn.attachSurface()
	return nil
}

// Free releases every buffer. Freeing an unallocated surface is a no-op.
func (s *Surface) Free() error {
	if !s.Live() {
		return nil
	}
	dev := s.conn.Device()
	var errs []error
	for _, b := range s.bufs {
		if err := dev.FreeBuffer(b); err != nil {
			errs = append(errs, err)
		}
	}
	s.bufs = nil
	s.back = 0
	s.mode = Mode{}
	s.conn.detachSurface()
	return errors.Join(errs...)
}

// Live reports whether buffers are allocated.
func (s *Surface) Live() bool {
	return len(s.bufs) > 0
}

// Mode returns the mode the buffers were sized for.
func (s *Surface) Mode() Mode {
	return s.mode
}

// Back returns the buffer to render the next frame into.
func (s *Surface) Back() Buffer {
	if !s.Live() {
		return nil
	}
	return s.bufs[s.back]
}

// Advance rotates to the next back buffer after a flip was submitted.
func (s *Surface) Advance() {
	if !s.Live() {
		return
	}
	s.back = (s.back + 1) % len(s.bufs)
}

// Len returns the number of buffers in the ring.
func (s *Surface) Len() int {
	return len(s.bufs)
}

// rebind records a new committed mode of the same size without touching
// the buffers.
func (s *Surface) rebind(mode Mode) {
	if s.Live() {
		s.mode = mode
	}
}
