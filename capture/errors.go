package capture

import (
	"errors"
	"fmt"

	"github.com/isgursoy/v4l2capture/v4l2"
)

// ErrClosed is returned by any capture call made after Close.
var ErrClosed = errors.New("capture: engine is closed")

// DeviceUnavailableError covers open/stat/QUERYCAP/capability-bit/STREAMON
// failures (spec §7): the device node cannot be driven at all.
type DeviceUnavailableError struct {
	Path string
	Err  error
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("capture: device %s unavailable: %v", e.Path, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error { return e.Err }

// UnsupportedFormatError covers an unknown pixel format (spec §7), raised
// before any syscall is issued.
type UnsupportedFormatError struct {
	Format v4l2.PixelFormat
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("capture: pixel format %d is not in the supported set", e.Format)
}

// FormatRejectedError covers VIDIOC_S_FMT returning an error for an
// otherwise-known format (spec §7): the driver rejected the negotiation.
type FormatRejectedError struct {
	Err error
}

func (e *FormatRejectedError) Error() string {
	return fmt.Sprintf("capture: driver rejected requested format: %v", e.Err)
}

func (e *FormatRejectedError) Unwrap() error { return e.Err }

// InsufficientBuffersError covers VIDIOC_REQBUFS granting fewer than one
// buffer (spec §7).
type InsufficientBuffersError struct {
	Requested, Granted uint32
	Err                error
}

func (e *InsufficientBuffersError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture: REQBUFS failed (requested %d): %v", e.Requested, e.Err)
	}
	return fmt.Sprintf("capture: REQBUFS granted %d buffers, need at least 1", e.Granted)
}

func (e *InsufficientBuffersError) Unwrap() error { return e.Err }

// MapFailureError covers an mmap(2) failure on a queried buffer (spec §7).
type MapFailureError struct {
	Index uint32
	Err   error
}

func (e *MapFailureError) Error() string {
	return fmt.Sprintf("capture: mmap of buffer %d failed: %v", e.Index, e.Err)
}

func (e *MapFailureError) Unwrap() error { return e.Err }
