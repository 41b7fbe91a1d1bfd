package capture

import (
	"errors"
	"runtime"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/isgursoy/v4l2capture/v4l2"
)

var errQueueInitialFailed = errors.New("initial QBUF of allocated buffer failed")

// bufferAlignment is the byte alignment the original implementation
// requests for caller-allocated USERPTR buffers (spec §9 design notes).
const bufferAlignment = 128

// setupBuffers implements the Buffer Arena component (spec §4.B):
// VIDIOC_REQBUFS, then - for MMAP only - per-slot QUERYBUF, an EXPBUF
// attempt with fallback to direct mmap, and an initial QBUF of every slot.
// USERPTR mode only needs REQBUFS; there is nothing to map until a caller
// supplies buffers.
func (e *Engine) setupBuffers() error {
	req := v4l2.RequestBuffers{
		Count:  e.cfg.NumBuffers,
		Type:   e.bufType,
		Memory: e.memType,
	}
	if err := e.ioctl(v4l2.VIDIOC_REQBUFS, unsafe.Pointer(&req)); err != nil {
		return &InsufficientBuffersError{Requested: e.cfg.NumBuffers, Err: err}
	}
	if req.Count < 1 {
		return &InsufficientBuffersError{Requested: e.cfg.NumBuffers, Granted: req.Count}
	}
	e.numBuffers = req.Count

	if e.memType == v4l2.MemoryUserPtr {
		return nil
	}

	e.slots = make([]slot, e.numBuffers)
	for i := uint32(0); i < e.numBuffers; i++ {
		s, err := e.mapSlot(i)
		if err != nil {
			return err
		}
		e.slots[i] = s
	}

	for i := uint32(0); i < e.numBuffers; i++ {
		if !e.queueMMAP(i) {
			return &MapFailureError{Index: i, Err: errQueueInitialFailed}
		}
	}
	return nil
}

// mapSlot runs QUERYBUF for index i, attempts EXPBUF+mmap(dmabuf fd) for
// each plane, and falls back to a direct mmap(device fd, offset) the first
// time EXPBUF fails - after which no further EXPBUF attempts are made for
// the rest of the arena (spec §12, grounded in the original DMA-BUF
// fallback behavior).
func (e *Engine) mapSlot(index uint32) (slot, error) {
	buf, planes := e.instantiateBuffer(index)
	if err := e.ioctl(v4l2.VIDIOC_QUERYBUF, unsafe.Pointer(&buf)); err != nil {
		return slot{}, &MapFailureError{Index: index, Err: err}
	}

	s := slot{planes: make([]planeDescriptor, e.bufferPlanes)}
	for j := 0; j < e.bufferPlanes; j++ {
		var length uint32
		var offset uint32
		if e.bufType == v4l2.BufTypeVideoCaptureMPlane {
			length = planes[j].Length
			offset = planes[j].MemOffset()
		} else {
			length = buf.Length
			offset = buf.Offset()
		}

		dmaFD := -1
		if !e.expbufFailed {
			eb := v4l2.ExportBuffer{Type: e.bufType, Index: index, Plane: uint32(j)}
			if err := e.ioctl(v4l2.VIDIOC_EXPBUF, unsafe.Pointer(&eb)); err == nil {
				dmaFD = int(eb.FD)
			} else {
				e.log.Debug("EXPBUF not supported, falling back to direct mmap", loggerErr(err))
				e.expbufFailed = true
			}
		}

		var base []byte
		var err error
		if dmaFD >= 0 {
			base, err = e.sys.mmap(dmaFD, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		} else {
			base, err = e.sys.mmap(e.fd, int64(offset), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		}
		if err != nil {
			if dmaFD >= 0 {
				_ = e.sys.close(dmaFD)
			}
			return slot{}, &MapFailureError{Index: index, Err: err}
		}
		s.planes[j] = planeDescriptor{base: base, dmaFD: dmaFD}
	}
	return s, nil
}

// instantiateBuffer builds a zeroed v4l2.Buffer (and, for multi-plane
// capture, its backing []v4l2.Plane array) addressed at index, ready for
// QUERYBUF/QBUF/DQBUF.
func (e *Engine) instantiateBuffer(index uint32) (v4l2.Buffer, []v4l2.Plane) {
	buf := v4l2.Buffer{Type: e.bufType, Memory: e.memType, Index: index}
	if e.bufType != v4l2.BufTypeVideoCaptureMPlane {
		return buf, nil
	}
	planes := make([]v4l2.Plane, e.planeCount)
	buf.Length = uint32(e.planeCount)
	buf.SetPlanes(planes)
	return buf, planes
}

// queueMMAP issues QBUF for an MMAP slot by index, used both for the
// initial fill and for requeues drained from the pending FIFO.
func (e *Engine) queueMMAP(index uint32) bool {
	buf, planes := e.instantiateBuffer(index)
	// buf.M points at planes' backing array for multi-plane capture; keep
	// it reachable until the ioctl that reads through that pointer returns.
	err := e.ioctl(v4l2.VIDIOC_QBUF, unsafe.Pointer(&buf))
	runtime.KeepAlive(planes)
	if err != nil {
		e.log.Warn("QBUF failed", zap.Uint32("index", index), loggerErr(err))
		return false
	}
	return true
}

// allocateScratchBuffers builds the per-buffer-index, per-plane byte
// slices GetFrameData uses internally when the engine is running in
// USERPTR mode (spec §6/§12): the kernel still needs somewhere to write,
// even though USERPTR mode has no caller buffer to write into yet.
func (e *Engine) allocateScratchBuffers() []UserBuffer {
	out := make([]UserBuffer, e.numBuffers)
	for i := range out {
		ub := make(UserBuffer, e.bufferPlanes)
		for j := range ub {
			ub[j] = alignedAlloc(int(e.planeSizes[j]))
		}
		out[i] = ub
	}
	return out
}

// alignedAlloc returns an n-byte slice whose first byte starts at a
// bufferAlignment boundary, by over-allocating and slicing.
func alignedAlloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n+bufferAlignment-1)
	start := uintptr(unsafe.Pointer(&buf[0]))
	pad := (bufferAlignment - int(start%bufferAlignment)) % bufferAlignment
	return buf[pad : pad+n]
}
