// Package capture implements a zero-copy Video4Linux2 capture engine: a
// buffer lifecycle state machine driving a single /dev/videoN node through
// MMAP or USERPTR buffers, a frame-selection policy choosing what a given
// capture call returns, and a control surface for the usual camera ioctls.
//
// The engine is not safe for concurrent use by multiple goroutines; every
// exported method blocks the calling goroutine for the duration of its
// syscalls, the way the single-threaded original it is modeled on does.
package capture

import (
	"errors"
	"unsafe"

	"go.uber.org/zap"

	"github.com/isgursoy/v4l2capture/v4l2"
)

var (
	errNotCharDevice     = errors.New("not a character device")
	errCapabilityMissing = errors.New("device lacks required capture/streaming capability")
)

// PlaneView borrows (MMAP) or reports on (USERPTR) one captured plane's
// bytes. Data is only valid until the next GetFrameData/PutFrameData call
// in MMAP mode, since the backing memory is requeued to the kernel then.
type PlaneView struct {
	Data []byte
}

// FrameView is one captured frame's buffer planes, NumPlanes entries long.
// Single-plane (contiguous) capture always yields one entry holding the
// whole frame; multi-plane capture yields one entry per visual plane of
// the pixel format, in the order the format decomposes (2 for NV12sp, 3
// for YUV422P, 1 for the packed formats).
type FrameView []PlaneView

// UserBuffer is one caller-owned multi-plane buffer passed to PutFrameData:
// one []byte per plane, each pre-sized by the caller.
type UserBuffer [][]byte

// planeDescriptor is one mapped (or DMA-BUF exported) plane of an MMAP
// buffer slot.
type planeDescriptor struct {
	base   []byte
	dmaFD  int // -1 when this plane was mapped directly rather than exported
}

// slot is one MMAP buffer's mapped planes.
type slot struct {
	planes []planeDescriptor
}

// Engine is the capture instance built by New. It owns exactly one open
// device file descriptor for its lifetime.
type Engine struct {
	cfg Config
	sys sysOps
	log *zap.Logger

	fd         int
	bufType    uint32
	memType    uint32
	planeCount int // visual planes the pixel format decomposes into
	// bufferPlanes is the number of physical buffer planes the device
	// actually hands buffers for: 1 for BufTypeVideoCapture regardless of
	// planeCount (a single-plane buffer packs every visual plane into one
	// contiguous region, spec §9), or planeCount for
	// BufTypeVideoCaptureMPlane. Every UserBuffer/FrameView/scratch-buffer
	// shaped structure is sized by this, not by planeCount.
	bufferPlanes int
	numBuffers   uint32
	planeSizes  []uint32 // per-buffer-plane sizeimage, len == bufferPlanes
	width       uint32
	height      uint32
	deviceLabel string

	slots        []slot   // MMAP only, len == numBuffers
	pending      []uint32 // MMAP pending-requeue FIFO, holds slot indices
	expbufFailed bool

	scratch []UserBuffer // USERPTR-mode scratch buffers for GetFrameData

	frameOrder uint64
	closed     bool
}

// New opens cfg.DeviceIndex's device node, negotiates the requested format,
// allocates buffers, and starts streaming. The returned Engine must be
// closed with Close when no longer needed.
func New(cfg Config) (*Engine, error) {
	return newEngine(cfg, realSysOps())
}

// newEngine is the test seam: it lets capture's own tests drive the engine
// against a simulated kernel instead of a real device node.
func newEngine(cfg Config, sys sysOps) (*Engine, error) {
	if _, ok := v4l2.FourCC(cfg.PixelFormat); !ok {
		return nil, &UnsupportedFormatError{Format: cfg.PixelFormat}
	}
	planeCount, ok := v4l2.PlaneCount(cfg.PixelFormat)
	if !ok {
		return nil, &UnsupportedFormatError{Format: cfg.PixelFormat}
	}

	bufType := cfg.bufType()
	bufferPlanes := planeCount
	if bufType != v4l2.BufTypeVideoCaptureMPlane {
		bufferPlanes = 1
	}

	e := &Engine{
		cfg:          cfg,
		sys:          sys,
		log:          cfg.logger(),
		fd:           -1,
		bufType:      bufType,
		memType:      cfg.memType(),
		planeCount:   planeCount,
		bufferPlanes: bufferPlanes,
		deviceLabel:  cfg.devicePath(),
		pending:      make([]uint32, 0, cfg.NumBuffers),
	}

	negotiated, err := e.openAndNegotiate()
	if err != nil {
		e.teardownPartial()
		return nil, err
	}
	e.width, e.height = negotiated.width, negotiated.height
	e.planeSizes = negotiated.planeSizes

	if err := e.setupBuffers(); err != nil {
		e.teardownPartial()
		return nil, err
	}

	if err := e.ioctl(v4l2.VIDIOC_STREAMON, unsafe.Pointer(&e.bufType)); err != nil {
		e.teardownPartial()
		return nil, &DeviceUnavailableError{Path: e.deviceLabel, Err: err}
	}

	if e.memType == v4l2.MemoryUserPtr {
		e.scratch = e.allocateScratchBuffers()
	}

	return e, nil
}

// ioctl dispatches req against the engine's open fd through the injected
// syscall layer.
func (e *Engine) ioctl(req uintptr, arg unsafe.Pointer) error {
	return e.sys.ioctl(e.fd, req, arg)
}

func loggerErr(err error) zap.Field { return zap.Error(err) }

// teardownPartial releases whatever resources a failed construction
// managed to acquire before the failure. Errors here are logged, never
// raised: the caller already has the construction error to act on.
func (e *Engine) teardownPartial() {
	for _, s := range e.slots {
		for _, p := range s.planes {
			if p.base != nil {
				if err := e.sys.munmap(p.base); err != nil {
					e.log.Debug("munmap during teardown failed", loggerErr(err))
				}
			}
			if p.dmaFD >= 0 {
				if err := e.sys.close(p.dmaFD); err != nil {
					e.log.Debug("closing exported dmabuf fd during teardown failed", loggerErr(err))
				}
			}
		}
	}
	e.slots = nil
	if e.fd >= 0 {
		if err := e.sys.close(e.fd); err != nil {
			e.log.Debug("close during teardown failed", loggerErr(err))
		}
		e.fd = -1
	}
}

// Close stops streaming, unmaps every buffer, and closes the device. Every
// failure along the way is logged; Close never returns a non-nil error
// because a torn-down engine has nothing left for a caller to act on.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.ioctl(v4l2.VIDIOC_STREAMOFF, unsafe.Pointer(&e.bufType)); err != nil {
		e.log.Warn("STREAMOFF failed during close", loggerErr(err))
	}
	e.teardownPartial()
	return nil
}

// Configuration returns a copy of the Config the engine was built with.
func (e *Engine) Configuration() Config { return e.cfg }

// PixelFormat returns the negotiated pixel format.
func (e *Engine) PixelFormat() v4l2.PixelFormat { return e.cfg.PixelFormat }

// Width returns the negotiated frame width, which may differ from the
// requested Config.Width.
func (e *Engine) Width() uint32 { return e.width }

// Height returns the negotiated frame height, which may differ from the
// requested Config.Height.
func (e *Engine) Height() uint32 { return e.height }

// NumPlanes returns the number of planes a FrameView/UserBuffer has: 1 for
// single-plane (contiguous) capture regardless of the pixel format's
// visual planarity, or the format's visual plane count for multi-plane
// capture.
func (e *Engine) NumPlanes() int { return e.bufferPlanes }

// FrameOrder returns the running count of capture attempts made so far:
// every DQBUF, including ones that found no frame or errored, plus every
// MMAP capture call whose readiness wait timed out (attempt-semantics,
// spec §8).
func (e *Engine) FrameOrder() uint64 { return e.frameOrder }
