package capture

import (
	"github.com/isgursoy/v4l2capture/internal/metrics"
	"github.com/isgursoy/v4l2capture/v4l2"
)

// selectFrame implements the Frame Selector component (spec §4.D) for
// MMAP-mode capture: it drains pending requeues, waits for readiness, and
// then applies the configured policy.
//
// Oldest dequeues exactly one buffer and defers its requeue to the next
// call, protecting the caller's read window (spec §4.C/§4.D).
//
// OnlyNewest drains the whole ring, keeps the buffer with the largest
// kernel timestamp, and requeues every other drained buffer immediately -
// only the winner is deferred.
func (e *Engine) selectFrame() FrameView {
	e.drainPending()

	if !e.waitReady() {
		// A capture call whose readiness wait times out still counts as
		// one attempt (FrameOrder attempt-semantics).
		e.frameOrder++
		metrics.IncFrameOrder(e.deviceLabel)
		return nil
	}

	if e.cfg.FrameSelect == OnlyNewest {
		return e.selectNewest()
	}
	return e.selectOldest()
}

func (e *Engine) selectOldest() FrameView {
	buf, planes, status := e.dequeue(e.numBuffers)
	if status != dqOK {
		return nil
	}
	view := e.planeView(buf, planes)
	e.pending = append(e.pending, buf.Index)
	metrics.SetBuffersHeld(e.deviceLabel, len(e.pending))
	return view
}

type dequeuedFrame struct {
	buf    v4l2.Buffer
	planes []v4l2.Plane
}

func (e *Engine) selectNewest() FrameView {
	byTimestamp := make(map[int64]dequeuedFrame)

	for i := uint32(0); i < e.numBuffers; i++ {
		buf, planes, status := e.dequeue(e.numBuffers)
		if status != dqOK {
			continue
		}
		key := int64(buf.Timestamp.Sec)*1_000_000 + int64(buf.Timestamp.Usec)
		if prev, dup := byTimestamp[key]; dup {
			// Same-microsecond collision: the later buffer takes the
			// entry and the earlier one goes straight back to the kernel.
			e.queueMMAP(prev.buf.Index)
		}
		byTimestamp[key] = dequeuedFrame{buf: buf, planes: planes}
	}

	if len(byTimestamp) == 0 {
		return nil
	}

	var winnerKey int64
	first := true
	for k := range byTimestamp {
		if first || k > winnerKey {
			winnerKey = k
			first = false
		}
	}

	var winner dequeuedFrame
	for k, f := range byTimestamp {
		if k == winnerKey {
			winner = f
			continue
		}
		e.queueMMAP(f.buf.Index)
	}

	view := e.planeView(winner.buf, winner.planes)
	e.pending = append(e.pending, winner.buf.Index)
	metrics.SetBuffersHeld(e.deviceLabel, len(e.pending))
	return view
}
