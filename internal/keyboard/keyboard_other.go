//go:build !linux

package keyboard

import "context"

// ListDevices is not supported on this platform.
func ListDevices() ([]DeviceInfo, error) { return nil, ErrNotAvailable }

// Reader is unavailable on this platform.
type Reader struct{}

// ReaderStats are cumulative counters of a Reader.
type ReaderStats struct {
	Reads   uint64
	Decoded uint64
	Dropped uint64
}

// NewReader always fails with ErrNotAvailable.
func NewReader(opts ...Option) (*Reader, error) { return nil, ErrNotAvailable }

func (r *Reader) Read() ([]KeyEvent, error) { return nil, ErrNotAvailable }

func (r *Reader) ReadContext(ctx context.Context) ([]KeyEvent, error) {
	return nil, ErrNotAvailable
}

func (r *Reader) Interrupt() error { return ErrNotAvailable }

func (r *Reader) Devices() []DeviceInfo { return nil }

func (r *Reader) Stats() ReaderStats { return ReaderStats{} }

func (r *Reader) Close() error { return nil }

// NewVirtualKeyboard always fails with ErrNotAvailable.
func NewVirtualKeyboard(opts ...Option) (*VirtualKeyboard, error) {
	return nil, ErrNotAvailable
}
