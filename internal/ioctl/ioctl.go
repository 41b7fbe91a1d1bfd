// Package ioctl builds Linux ioctl request codes and dispatches them,
// retrying on EINTR the way the V4L2 documentation requires.
package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Bit layout of a Linux ioctl request number, from asm-generic/ioctl.h.
const (
	dirNone  = 0
	dirWrite = 1
	dirRead  = 2

	numBits  = 8
	typeBits = 8
	sizeBits = 14

	numShift  = 0
	typeShift = numShift + numBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits
)

func build(dir, typ, nr uintptr, size uintptr) uintptr {
	return (dir << dirShift) | (typ << typeShift) | (nr << numShift) | (size << sizeShift)
}

// IoR builds a "read" ioctl request code (data flows kernel -> user).
func IoR(typ, nr uintptr, size uintptr) uintptr {
	return build(dirRead, typ, nr, size)
}

// IoW builds a "write" ioctl request code (data flows user -> kernel).
func IoW(typ, nr uintptr, size uintptr) uintptr {
	return build(dirWrite, typ, nr, size)
}

// IoRW builds a "read/write" ioctl request code.
func IoRW(typ, nr uintptr, size uintptr) uintptr {
	return build(dirRead|dirWrite, typ, nr, size)
}

// Func dispatches a single ioctl call. Production code always uses
// [Syscall]; tests substitute a simulated kernel so the capture engine can
// be exercised without a real /dev/video node.
type Func func(fd int, req uintptr, arg unsafe.Pointer) error

// Syscall issues req against fd via the real ioctl(2) syscall, retrying
// while the kernel reports EINTR (the driver was interrupted mid-call, not
// actually an error).
func Syscall(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errno == unix.EINTR {
			continue
		}
		return errno
	}
}
