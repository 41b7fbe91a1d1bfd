package capture

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/isgursoy/v4l2capture/v4l2"
)

// fakeKernel is the simulated-kernel test double described in the expanded
// design's test-tooling section: it answers the same ioctl codes a real
// V4L2 driver would, entirely in memory, so the engine can be exercised
// without a /dev/video node.
type fakeKernel struct {
	deviceFD int

	multiplane bool
	planeCount int
	planeSize  uint32
	memType    uint32

	forceGrant *uint32
	reqbufsErr error
	sFmtErr    error
	qbufErr    error
	expbufOK   bool
	fpsGrant   *v4l2.Fract

	queued     map[uint32]bool
	ready      []uint32
	bytesUsed  map[uint32]uint32
	planeBytes map[uint32][]uint32
	timestamp  map[uint32]unix.Timeval

	planeData map[slotKey][]byte
	fdToSlot  map[int]slotKey
	nextDMAFD int

	userAddrs   map[uint32][]uintptr
	userLengths map[uint32][]uint32
	autoFill    bool
	autoFillLen uint32

	controls map[uint32]int32
	fract    v4l2.Fract
}

type slotKey struct{ index, plane uint32 }

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		planeSize:   4096,
		queued:      map[uint32]bool{},
		bytesUsed:   map[uint32]uint32{},
		planeBytes:  map[uint32][]uint32{},
		timestamp:   map[uint32]unix.Timeval{},
		planeData:   map[slotKey][]byte{},
		fdToSlot:    map[int]slotKey{},
		userAddrs:   map[uint32][]uintptr{},
		userLengths: map[uint32][]uint32{},
		controls:    map[uint32]int32{},
	}
}

func readPlanes(buf *v4l2.Buffer) []v4l2.Plane {
	if buf.Length == 0 {
		return nil
	}
	return unsafe.Slice((*v4l2.Plane)(unsafe.Pointer(uintptr(buf.M))), int(buf.Length))
}

func offsetFor(index, plane uint32) uint32 { return index*1000 + plane }

func (k *fakeKernel) lowestQueued() (uint32, bool) {
	var best uint32
	found := false
	for idx := range k.queued {
		if !found || idx < best {
			best = idx
			found = true
		}
	}
	return best, found
}

func (k *fakeKernel) ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	switch req {
	case v4l2.VIDIOC_QUERYCAP:
		cp := (*v4l2.Capability)(arg)
		cp.Capabilities = v4l2.CapVideoCapture | v4l2.CapVideoCaptureMPlane | v4l2.CapStreaming
		return nil

	case v4l2.VIDIOC_CROPCAP:
		return unix.EINVAL

	case v4l2.VIDIOC_S_FMT:
		f := (*v4l2.Format)(arg)
		if f.Type == v4l2.BufTypeVideoCaptureMPlane {
			mp := f.PixFormatMPlane()
			k.multiplane = true
			k.planeCount = int(mp.NumPlanes)
			for j := 0; j < k.planeCount; j++ {
				mp.PlaneFmt[j].SizeImage = k.planeSize
			}
			f.PutPixFormatMPlane(mp)
		} else {
			pf := f.PixFormat()
			k.multiplane = false
			k.planeCount = 1
			pf.SizeImage = k.planeSize
			f.PutPixFormat(pf)
		}
		return k.sFmtErr

	case v4l2.VIDIOC_REQBUFS:
		rb := (*v4l2.RequestBuffers)(arg)
		if k.reqbufsErr != nil {
			return k.reqbufsErr
		}
		k.memType = rb.Memory
		granted := rb.Count
		if k.forceGrant != nil {
			granted = *k.forceGrant
		}
		rb.Count = granted
		return nil

	case v4l2.VIDIOC_QUERYBUF:
		buf := (*v4l2.Buffer)(arg)
		idx := buf.Index
		if k.multiplane {
			planes := readPlanes(buf)
			for j := 0; j < k.planeCount && j < len(planes); j++ {
				planes[j].Length = k.planeSize
				planes[j].SetMemOffset(offsetFor(idx, uint32(j)))
			}
		} else {
			buf.Length = k.planeSize
			buf.SetOffset(offsetFor(idx, 0))
		}
		return nil

	case v4l2.VIDIOC_EXPBUF:
		if !k.expbufOK {
			return unix.ENOTTY
		}
		eb := (*v4l2.ExportBuffer)(arg)
		fd := k.nextDMAFD
		k.nextDMAFD++
		k.fdToSlot[fd] = slotKey{index: eb.Index, plane: eb.Plane}
		eb.FD = int32(fd)
		return nil

	case v4l2.VIDIOC_QBUF:
		buf := (*v4l2.Buffer)(arg)
		if k.memType == v4l2.MemoryUserPtr {
			if k.multiplane {
				planes := readPlanes(buf)
				addrs := make([]uintptr, len(planes))
				lens := make([]uint32, len(planes))
				for j, p := range planes {
					addrs[j] = uintptr(p.M)
					lens[j] = p.Length
				}
				k.userAddrs[buf.Index] = addrs
				k.userLengths[buf.Index] = lens
			} else {
				k.userAddrs[buf.Index] = []uintptr{uintptr(buf.M)}
				k.userLengths[buf.Index] = []uint32{buf.Length}
			}
		}
		k.queued[buf.Index] = true
		return k.qbufErr

	case v4l2.VIDIOC_DQBUF:
		if k.autoFill {
			if idx, ok := k.lowestQueued(); ok {
				if addrs, ok := k.userAddrs[idx]; ok {
					for _, addr := range addrs {
						dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(k.autoFillLen))
						for i := range dst {
							dst[i] = byte(idx + 1)
						}
					}
				}
				k.bytesUsed[idx] = k.autoFillLen
				sizes := make([]uint32, k.planeCount)
				for j := range sizes {
					sizes[j] = k.autoFillLen
				}
				k.planeBytes[idx] = sizes
				delete(k.queued, idx)
				k.ready = append(k.ready, idx)
			}
		}
		if len(k.ready) == 0 {
			return unix.EAGAIN
		}
		idx := k.ready[0]
		k.ready = k.ready[1:]
		buf := (*v4l2.Buffer)(arg)
		buf.Index = idx
		buf.Timestamp = k.timestamp[idx]
		if k.multiplane {
			planes := readPlanes(buf)
			sizes := k.planeBytes[idx]
			for j := 0; j < k.planeCount && j < len(planes) && j < len(sizes); j++ {
				planes[j].BytesUsed = sizes[j]
			}
		} else {
			buf.BytesUsed = k.bytesUsed[idx]
		}
		return nil

	case v4l2.VIDIOC_STREAMON, v4l2.VIDIOC_STREAMOFF:
		return nil

	case v4l2.VIDIOC_S_CTRL:
		ctrl := (*v4l2.Control)(arg)
		k.controls[ctrl.ID] = ctrl.Value
		return nil

	case v4l2.VIDIOC_G_CTRL:
		ctrl := (*v4l2.Control)(arg)
		ctrl.Value = k.controls[ctrl.ID]
		return nil

	case v4l2.VIDIOC_S_PARM:
		parm := (*v4l2.StreamParm)(arg)
		if k.fpsGrant != nil {
			parm.Capture.TimePerFrame = *k.fpsGrant
		}
		k.fract = parm.Capture.TimePerFrame
		return nil

	case v4l2.VIDIOC_G_PARM:
		parm := (*v4l2.StreamParm)(arg)
		parm.Capture.Capability = v4l2.CapTimePerFrame
		parm.Capture.TimePerFrame = k.fract
		return nil

	default:
		return nil
	}
}

func (k *fakeKernel) mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	var key slotKey
	if fd == k.deviceFD {
		key = slotKey{index: uint32(offset) / 1000, plane: uint32(offset) % 1000}
	} else {
		sk, ok := k.fdToSlot[fd]
		if !ok {
			return nil, unix.EBADF
		}
		key = sk
	}
	if b, ok := k.planeData[key]; ok {
		return b, nil
	}
	b := make([]byte, length)
	k.planeData[key] = b
	return b, nil
}

// injectFrame delivers a captured MMAP frame for index: it writes data
// into the already-mapped plane buffers and moves the index from queued
// to ready, the way a real driver's capture interrupt would.
func (k *fakeKernel) injectFrame(index uint32, ts unix.Timeval, planes [][]byte) {
	sizes := make([]uint32, len(planes))
	for j, data := range planes {
		dst := k.planeData[slotKey{index: index, plane: uint32(j)}]
		copy(dst, data)
		sizes[j] = uint32(len(data))
	}
	if k.multiplane {
		k.planeBytes[index] = sizes
	} else {
		k.bytesUsed[index] = sizes[0]
	}
	k.timestamp[index] = ts
	if k.queued[index] {
		delete(k.queued, index)
		k.ready = append(k.ready, index)
	}
}

func (k *fakeKernel) sysOps() sysOps {
	return sysOps{
		ioctl:  k.ioctl,
		mmap:   k.mmap,
		munmap: func([]byte) error { return nil },
		open: func(path string, flags int) (int, error) {
			k.deviceFD = 42
			return 42, nil
		},
		close: func(fd int) error { return nil },
		stat:  func(path string) (bool, error) { return true, nil },
		waitReadable: func(fd int, timeout time.Duration) (bool, error) {
			return len(k.ready) > 0 || (k.autoFill && len(k.queued) > 0), nil
		},
	}
}
