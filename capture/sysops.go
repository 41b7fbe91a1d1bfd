package capture

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/isgursoy/v4l2capture/internal/ioctl"
)

// sysOps is the engine's entire syscall surface, injected so the engine can
// be driven against a simulated kernel in tests without a real /dev/video
// node (spec §10.4 of the expanded design). Production code always gets
// realSysOps(); nothing in capture/ calls golang.org/x/sys/unix directly
// outside this file.
type sysOps struct {
	ioctl  ioctl.Func
	mmap   func(fd int, offset int64, length int, prot int, flags int) ([]byte, error)
	munmap func(b []byte) error
	open   func(path string, flags int) (int, error)
	close  func(fd int) error
	stat   func(path string) (isCharDevice bool, err error)
	// waitReadable blocks until fd is readable or timeout elapses, returning
	// (true, nil) on readiness and (false, nil) on timeout. It retries
	// internally on EINTR.
	waitReadable func(fd int, timeout time.Duration) (bool, error)
}

func realSysOps() sysOps {
	return sysOps{
		ioctl:        ioctl.Syscall,
		mmap:         unix.Mmap,
		munmap:       unix.Munmap,
		open:         realOpen,
		close:        unix.Close,
		stat:         realStat,
		waitReadable: realWaitReadable,
	}
}

func realOpen(path string, flags int) (int, error) {
	return unix.Open(path, flags, 0)
}

func realStat(path string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, err
	}
	return st.Mode&unix.S_IFMT == unix.S_IFCHR, nil
}

// realWaitReadable mirrors the teacher's FD_SET/select-based waitForFrame,
// generalized to an arbitrary timeout.
func realWaitReadable(fd int, timeout time.Duration) (bool, error) {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	for {
		var fds unix.FdSet
		fdSet(&fds, fd)
		n, err := unix.Select(fd+1, &fds, nil, nil, &tv)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

func fdSet(fds *unix.FdSet, fd int) {
	fds.Bits[fd/64] |= 1 << (uint(fd) % 64)
}
