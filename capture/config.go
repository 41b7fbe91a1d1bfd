package capture

import (
	"fmt"
	"time"

	"github.com/isgursoy/v4l2capture/internal/logging"
	"github.com/isgursoy/v4l2capture/v4l2"
	"go.uber.org/zap"
)

// BufferingMode selects the memory model the engine drives the device
// with (spec §3 Configuration: buffering mode).
type BufferingMode int

const (
	// Internal is MMAP mode: the kernel owns the buffers, the engine maps
	// them and hands out views ("pull").
	Internal BufferingMode = iota
	// UserPtr is USERPTR mode: the caller owns the buffers, the engine
	// only hands the kernel pointers for the duration of a call ("push").
	UserPtr
)

func (m BufferingMode) String() string {
	if m == UserPtr {
		return "userptr"
	}
	return "internal"
}

// FrameSelectionPolicy selects what a single GetFrameData call returns
// when more than one buffer is ready (spec §4.D). The descriptions below
// are the MMAP behavior; USERPTR-mode GetFrameData applies the same policy
// over its scratch buffers, with bytes captured standing in for the
// timestamp.
type FrameSelectionPolicy int

const (
	// Oldest returns the next buffer in FIFO order: one DQBUF per call.
	Oldest FrameSelectionPolicy = iota
	// OnlyNewest drains the ring and returns the buffer with the largest
	// kernel timestamp, requeueing every other drained buffer immediately.
	OnlyNewest
)

// CropRect is the capture crop rectangle (spec §3). A zero rectangle
// (all fields 0) means "do not crop" - S_CROP is only issued when at
// least one field is non-zero.
type CropRect struct {
	X, Y, W, H uint32
}

func (c CropRect) isZero() bool {
	return c.X == 0 && c.Y == 0 && c.W == 0 && c.H == 0
}

// Config is the immutable-after-construction description of a capture
// instance (spec §3 Configuration). A zero-value Config is not usable;
// build one with DefaultConfig and override fields, or construct one
// directly naming every mandatory field.
type Config struct {
	Width, Height uint32
	FPS           uint32
	PixelFormat   v4l2.PixelFormat
	DeviceIndex   int
	NumBuffers    uint32
	Buffering     BufferingMode
	Crop          CropRect
	Contiguous    bool
	FrameSelect   FrameSelectionPolicy

	// SelectTimeout bounds the readiness wait (spec §4.C); zero means the
	// spec default of 200ms.
	SelectTimeout time.Duration

	// Logger receives every "logged, not raised" event (spec §7). Nil
	// means a no-op logger - the engine never forces logging configuration
	// on a caller.
	Logger *zap.Logger
}

// DefaultConfig returns a Config with the spec's stated defaults: 4
// buffers, Internal/MMAP buffering, Oldest selection, contiguous
// (single-plane) capture, and a 200ms readiness timeout. Width, Height,
// FPS, PixelFormat and DeviceIndex are mandatory and left zero.
func DefaultConfig() Config {
	return Config{
		NumBuffers:    4,
		Buffering:     Internal,
		FrameSelect:   Oldest,
		Contiguous:    true,
		SelectTimeout: 200 * time.Millisecond,
	}
}

func (c Config) devicePath() string {
	return fmt.Sprintf("/dev/video%d", c.DeviceIndex)
}

func (c Config) selectTimeout() time.Duration {
	if c.SelectTimeout <= 0 {
		return 200 * time.Millisecond
	}
	return c.SelectTimeout
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return logging.NoOp()
	}
	return c.Logger
}

func (c Config) bufType() uint32 {
	if c.Contiguous {
		return v4l2.BufTypeVideoCapture
	}
	return v4l2.BufTypeVideoCaptureMPlane
}

func (c Config) memType() uint32 {
	if c.Buffering == UserPtr {
		return v4l2.MemoryUserPtr
	}
	return v4l2.MemoryMMAP
}
