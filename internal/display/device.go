package display

// Buffer is an opaque presentable buffer allocated by a Device.
type Buffer interface {
	ID() uint32
	Width() int
	Height() int
}

// Device abstracts the kernel graphics subsystem: mode-setting, buffer
// allocation and the page-flip/vblank handshake.
type Device interface {
	// Open acquires the device and its buffer allocator.
	Open() error
	// Close releases the device.
	Close() error

	// Modes lists every mode of every connected output. It returns
	// ErrNoOutputs when nothing is connected.
	Modes() ([]Mode, error)
	// CurrentMode returns the mode the hardware is scanning out.
	CurrentMode() (Mode, error)
	// SetMode commits m. On error the previous mode must still be active.
	SetMode(m Mode) error

	AllocateBuffer(width, height int) (Buffer, error)
	FreeBuffer(b Buffer) error

	// PageFlip queues b for scan-out on the next vblank. The returned channel
	// receives exactly one value once the hardware acknowledges the flip.
	PageFlip(b Buffer) (<-chan error, error)
	// WaitVBlank blocks until the next vertical blank.
	WaitVBlank() error
}

// HotplugSource is implemented by devices that report output changes.
type HotplugSource interface {
	Hotplug() <-chan struct{}
}
