package capture

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/isgursoy/v4l2capture/v4l2"
)

func baseConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	cfg.PixelFormat = v4l2.PixelFormatYUYV422
	cfg.NumBuffers = 2
	cfg.SelectTimeout = 10 * time.Millisecond
	return cfg
}

func TestNewUnsupportedFormat(t *testing.T) {
	cfg := baseConfig()
	cfg.PixelFormat = v4l2.PixelFormat(999)

	_, err := newEngine(cfg, sysOps{})
	var want *UnsupportedFormatError
	if !errors.As(err, &want) {
		t.Fatalf("got %v, want *UnsupportedFormatError", err)
	}
}

func TestNewInsufficientBuffers(t *testing.T) {
	k := newFakeKernel()
	zero := uint32(0)
	k.forceGrant = &zero

	_, err := newEngine(baseConfig(), k.sysOps())
	var want *InsufficientBuffersError
	if !errors.As(err, &want) {
		t.Fatalf("got %v, want *InsufficientBuffersError", err)
	}
}

func TestOldestPolicyDefersRequeue(t *testing.T) {
	k := newFakeKernel()
	cfg := baseConfig()
	cfg.FrameSelect = Oldest

	e, err := newEngine(cfg, k.sysOps())
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	defer e.Close()

	k.injectFrame(0, unix.Timeval{Sec: 1}, [][]byte{{1, 2, 3, 4}})

	view, err := e.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData: %v", err)
	}
	if len(view) != 1 || len(view[0].Data) != 4 {
		t.Fatalf("unexpected view %#v", view)
	}
	if k.queued[0] {
		t.Fatalf("buffer 0 was requeued immediately, expected deferred")
	}
	if len(e.pending) != 1 || e.pending[0] != 0 {
		t.Fatalf("pending = %v, want [0]", e.pending)
	}

	k.injectFrame(1, unix.Timeval{Sec: 2}, [][]byte{{5, 6, 7, 8}})
	if _, err := e.GetFrameData(); err != nil {
		t.Fatalf("GetFrameData #2: %v", err)
	}
	if !k.queued[0] {
		t.Fatalf("buffer 0 was never requeued on the following call")
	}
}

func TestOnlyNewestTieBreak(t *testing.T) {
	k := newFakeKernel()
	cfg := baseConfig()
	cfg.NumBuffers = 3
	cfg.FrameSelect = OnlyNewest

	e, err := newEngine(cfg, k.sysOps())
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	defer e.Close()

	k.injectFrame(0, unix.Timeval{Sec: 1, Usec: 0}, [][]byte{{0}})
	k.injectFrame(1, unix.Timeval{Sec: 3, Usec: 0}, [][]byte{{1}})
	k.injectFrame(2, unix.Timeval{Sec: 2, Usec: 0}, [][]byte{{2}})

	view, err := e.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData: %v", err)
	}
	if len(view) != 1 || len(view[0].Data) != 1 || view[0].Data[0] != 1 {
		t.Fatalf("winner should be buffer 1 (newest timestamp), got %#v", view)
	}
	if k.queued[1] {
		t.Fatalf("winning buffer 1 must be deferred, not requeued")
	}
	if !k.queued[0] || !k.queued[2] {
		t.Fatalf("losing buffers must be requeued immediately, queued=%v", k.queued)
	}
	if len(e.pending) != 1 || e.pending[0] != 1 {
		t.Fatalf("pending = %v, want [1]", e.pending)
	}
}

func TestPutFrameDataUserPtrDrainsQueue(t *testing.T) {
	k := newFakeKernel()
	k.autoFill = true
	k.autoFillLen = 2048

	cfg := baseConfig()
	cfg.Buffering = UserPtr

	e, err := newEngine(cfg, k.sysOps())
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	defer e.Close()

	buffers := []UserBuffer{
		{make([]byte, 4096)},
		{make([]byte, 4096)},
	}

	sizes, err := e.PutFrameData(buffers)
	if err != nil {
		t.Fatalf("PutFrameData: %v", err)
	}
	if len(sizes) != 2 || len(sizes[0]) != 1 {
		t.Fatalf("unexpected sizes shape %#v", sizes)
	}
	for i, row := range sizes {
		if row[0] != int(k.autoFillLen) {
			t.Fatalf("sizes[%d][0] = %d, want %d", i, row[0], k.autoFillLen)
		}
	}
	if len(k.queued) != 0 {
		t.Fatalf("kernel still holds queued buffers after PutFrameData: %v", k.queued)
	}
}

func TestSetFPSExactGrantReportsZero(t *testing.T) {
	k := newFakeKernel()
	e, err := newEngine(baseConfig(), k.sysOps())
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	defer e.Close()

	if got := e.SetFPS(30); got != 0 {
		t.Fatalf("SetFPS with exact grant = %v, want 0", got)
	}
}

func TestSetFPSDivergentGrantReportsActual(t *testing.T) {
	k := newFakeKernel()
	k.fpsGrant = &v4l2.Fract{Numerator: 1, Denominator: 25}

	e, err := newEngine(baseConfig(), k.sysOps())
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	defer e.Close()

	got := e.SetFPS(30)
	if got < 24.9 || got > 25.1 {
		t.Fatalf("SetFPS with divergent grant = %v, want ~25", got)
	}
}
