package capture

import (
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/isgursoy/v4l2capture/internal/metrics"
	"github.com/isgursoy/v4l2capture/v4l2"
)

// dqStatus classifies the outcome of a single DQBUF attempt.
type dqStatus int

const (
	dqOK dqStatus = iota
	dqAgain
	dqSoftSkip // EIO: driver reported a recoverable frame error
	dqOtherErr
)

// waitReady blocks for up to the configured SelectTimeout for the device
// fd to become readable (spec §4.C). It reports readiness, not error: a
// timeout is not a failure, just an empty result for this call.
func (e *Engine) waitReady() bool {
	start := time.Now()
	ready, err := e.sys.waitReadable(e.fd, e.cfg.selectTimeout())
	metrics.ObserveReadinessWait(e.deviceLabel, time.Since(start).Seconds())
	if err != nil {
		e.log.Debug("select on device fd failed", loggerErr(err))
		metrics.IncCaptureError(e.deviceLabel, "select")
		return false
	}
	return ready
}

// dequeue issues DQBUF and classifies the result. maxIndex bounds which
// buffer indices are considered valid: the configured ring size in MMAP
// mode, or the caller-supplied buffer count in USERPTR mode.
func (e *Engine) dequeue(maxIndex uint32) (v4l2.Buffer, []v4l2.Plane, dqStatus) {
	buf, planes := e.instantiateBuffer(0)
	err := e.ioctl(v4l2.VIDIOC_DQBUF, unsafe.Pointer(&buf))
	e.frameOrder++
	metrics.IncFrameOrder(e.deviceLabel)
	if err == nil {
		if buf.Index >= maxIndex {
			e.log.Warn("DQBUF returned an out-of-range buffer index", zap.Uint32("index", buf.Index))
			return buf, planes, dqOtherErr
		}
		return buf, planes, dqOK
	}
	switch err {
	case unix.EAGAIN:
		return buf, planes, dqAgain
	case unix.EIO:
		e.log.Debug("DQBUF reported EIO, skipping frame", loggerErr(err))
		metrics.IncCaptureError(e.deviceLabel, "dqbuf_eio")
		return buf, planes, dqSoftSkip
	default:
		e.log.Warn("DQBUF failed", loggerErr(err))
		metrics.IncCaptureError(e.deviceLabel, "dqbuf")
		return buf, planes, dqOtherErr
	}
}

// drainPending requeues every buffer the frame selector deferred on a
// previous call, oldest deferral first (spec §4.C pending-requeue FIFO).
func (e *Engine) drainPending() {
	for _, idx := range e.pending {
		e.queueMMAP(idx)
	}
	e.pending = e.pending[:0]
	metrics.SetBuffersHeld(e.deviceLabel, 0)
}

// planeView builds the FrameView a caller sees for an MMAP buffer that was
// just dequeued, slicing each mapped plane down to its reported
// bytes-used (spec §4.A bytesused-only sizing trust).
func (e *Engine) planeView(buf v4l2.Buffer, planes []v4l2.Plane) FrameView {
	s := e.slots[buf.Index]
	if e.bufType == v4l2.BufTypeVideoCaptureMPlane {
		view := make(FrameView, e.planeCount)
		for j := 0; j < e.planeCount; j++ {
			n := planes[j].BytesUsed
			view[j] = PlaneView{Data: s.planes[j].base[:n:n]}
		}
		return view
	}
	// Single-plane capture has exactly one buffer plane regardless of how
	// many visual planes the pixel format decomposes into: the whole frame
	// - every visual plane packed contiguously - comes back as one view
	// (spec §9), matching the original implementation's single-buffer
	// return for non-multiplanar capture.
	n := buf.BytesUsed
	return FrameView{{Data: s.planes[0].base[:n:n]}}
}
