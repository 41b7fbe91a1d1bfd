package capture

import (
	"runtime"
	"unsafe"

	"github.com/isgursoy/v4l2capture/v4l2"
)

// GetFrameData returns the next frame chosen by the configured selection
// policy. In MMAP mode the returned views borrow the mapped buffers and
// are only valid until the next capture call. In USERPTR mode the engine
// cycles its own scratch buffers through the device and applies the same
// selection policy over the results (spec §6/§12).
func (e *Engine) GetFrameData() (FrameView, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if e.memType == v4l2.MemoryUserPtr {
		return e.getFrameDataUserPtr(), nil
	}
	return e.selectFrame(), nil
}

// PutFrameData exchanges caller-supplied multi-plane buffers with the
// device. In USERPTR mode the buffers are queued directly. In MMAP mode
// the engine captures through its own mapped buffers and copies the
// result into the caller's buffers (spec §6/§9), so the call works in
// either buffering mode.
//
// The returned matrix reports bytes actually written per buffer, per
// plane; a buffer the device could not fill (driver error, or a caller
// buffer too small to hold the captured plane) reports all zeros for that
// row rather than a partial, ambiguous copy.
func (e *Engine) PutFrameData(buffers []UserBuffer) ([][]int, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if e.memType == v4l2.MemoryUserPtr {
		return e.putFrameDataUserPtr(buffers), nil
	}
	return e.putFrameDataMMAPCopy(buffers), nil
}

// putFrameDataUserPtr implements the USERPTR Exchange component (spec
// §4.E): QBUF every caller buffer, wait once, then drain exactly as many
// DQBUFs as were successfully queued. EAGAIN re-waits without consuming an
// attempt; EIO and other DQBUF errors consume an attempt but leave that
// row at zero, mirroring the original implementation's retry loop.
func (e *Engine) putFrameDataUserPtr(buffers []UserBuffer) [][]int {
	m := len(buffers)
	sizes := make([][]int, m)
	for i := range sizes {
		sizes[i] = make([]int, e.bufferPlanes)
	}

	queued := 0
	for i, ub := range buffers {
		if e.queueUserBuffer(uint32(i), ub) {
			queued++
		}
	}

	if !e.waitReady() {
		e.log.Debug("device not ready before USERPTR drain, draining anyway")
	}

	for attempts := 0; attempts < queued; {
		buf, planes, status := e.dequeue(uint32(m))
		switch status {
		case dqAgain:
			e.waitReady()
			continue
		case dqOK:
			e.recordDequeuedSizes(sizes, buf, planes)
			attempts++
		default:
			attempts++
		}
	}

	return sizes
}

// queueUserBuffer issues QBUF for one caller-supplied multi-plane buffer
// at the given USERPTR index.
func (e *Engine) queueUserBuffer(index uint32, ub UserBuffer) bool {
	buf := v4l2.Buffer{Type: e.bufType, Memory: v4l2.MemoryUserPtr, Index: index}
	var planes []v4l2.Plane
	if e.bufType == v4l2.BufTypeVideoCaptureMPlane {
		planes = make([]v4l2.Plane, e.planeCount)
		for j := 0; j < e.planeCount; j++ {
			if len(ub[j]) == 0 {
				continue
			}
			planes[j].SetUserptr(uintptr(unsafe.Pointer(&ub[j][0])))
			planes[j].Length = uint32(len(ub[j]))
		}
		buf.Length = uint32(e.planeCount)
		buf.SetPlanes(planes)
	} else {
		if len(ub[0]) == 0 {
			return false
		}
		buf.SetUserptr(uintptr(unsafe.Pointer(&ub[0][0])))
		buf.Length = uint32(len(ub[0]))
	}
	// buf.M points at planes' backing array (multi-plane) or directly into
	// ub's backing array (single-plane); both must stay reachable until the
	// ioctl that reads through that pointer returns.
	err := e.ioctl(v4l2.VIDIOC_QBUF, unsafe.Pointer(&buf))
	runtime.KeepAlive(planes)
	runtime.KeepAlive(ub)
	if err != nil {
		e.log.Warn("QBUF of USERPTR buffer failed", loggerErr(err))
		return false
	}
	return true
}

func (e *Engine) recordDequeuedSizes(sizes [][]int, buf v4l2.Buffer, planes []v4l2.Plane) {
	row := sizes[buf.Index]
	if e.bufType == v4l2.BufTypeVideoCaptureMPlane {
		for j := 0; j < e.planeCount && j < len(planes); j++ {
			row[j] = int(planes[j].BytesUsed)
		}
		return
	}
	row[0] = int(buf.BytesUsed)
}

// getFrameDataUserPtr runs one USERPTR exchange through the engine's own
// scratch buffers, then applies the configured selection policy over the
// resulting bytes-used matrix: Oldest returns the first non-empty buffer
// in index order, OnlyNewest returns the one with the most bytes captured
// in its first plane as a proxy for recency (USERPTR buffers carry no
// cross-call timestamp the caller can compare, spec §12).
func (e *Engine) getFrameDataUserPtr() FrameView {
	sizes := e.putFrameDataUserPtr(e.scratch)

	best := -1
	for i, row := range sizes {
		if row[0] == 0 {
			continue
		}
		if best == -1 {
			best = i
			if e.cfg.FrameSelect == Oldest {
				break
			}
			continue
		}
		if e.cfg.FrameSelect == OnlyNewest && row[0] > sizes[best][0] {
			best = i
		}
	}
	if best == -1 {
		return nil
	}

	view := make(FrameView, e.bufferPlanes)
	for j := 0; j < e.bufferPlanes; j++ {
		n := sizes[best][j]
		view[j] = PlaneView{Data: e.scratch[best][j][:n:n]}
	}
	return view
}

// putFrameDataMMAPCopy captures one frame per caller buffer through the
// MMAP path and copies each plane into the caller's buffer, reporting zero
// for any buffer the caller under-provisioned rather than writing a
// truncated, silently-partial plane.
func (e *Engine) putFrameDataMMAPCopy(buffers []UserBuffer) [][]int {
	sizes := make([][]int, len(buffers))
	for i := range sizes {
		sizes[i] = make([]int, e.bufferPlanes)
	}

	for i, ub := range buffers {
		view := e.selectFrame()
		if view == nil {
			continue
		}
		if !ubFits(ub, view) {
			e.log.Warn("caller buffer too small for captured frame, reporting zero bytes")
			continue
		}
		for j := range view {
			n := copy(ub[j], view[j].Data)
			sizes[i][j] = n
		}
	}
	return sizes
}

func ubFits(ub UserBuffer, view FrameView) bool {
	if len(ub) < len(view) {
		return false
	}
	for j := range view {
		if len(ub[j]) < len(view[j].Data) {
			return false
		}
	}
	return true
}
