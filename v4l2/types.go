package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Capability is v4l2_capability (VIDIOC_QUERYCAP).
type Capability struct {
	Driver       [16]uint8
	Card         [32]uint8
	BusInfo      [32]uint8
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

// FmtDesc is v4l2_fmtdesc (VIDIOC_ENUM_FMT). Kept for bit-exact parity with
// the kernel surface even though this engine's public API does not expose
// format enumeration (spec's public interface is closed to the functions
// listed in spec §6).
type FmtDesc struct {
	Index       uint32
	Type        uint32
	Flags       uint32
	Description [32]uint8
	PixelFormat uint32
	Reserved    [4]uint32
}

// formatUnionSize mirrors the kernel's `__u8 raw_data[200]` fallback member
// of the v4l2_format union: big enough to hold either v4l2_pix_format or
// v4l2_pix_format_mplane. The kernel union also holds pointer-bearing
// members, so it starts at pointer alignment; Format pads Type out to that
// boundary, the alignment the teacher's v4l2.go "hack to make the compiler
// properly align the union" achieves, generalized to also fit the
// multi-planar variant.
const formatUnionSize = 200

// Format is v4l2_format (VIDIOC_S_FMT / VIDIOC_G_FMT). The Raw field holds
// whichever of PixFormat / PixFormatMPlane applies to Type; use
// PutPixFormat/PixFormat or PutPixFormatMPlane/PixFormatMPlane to access it.
type Format struct {
	Type uint32
	_    [unsafe.Sizeof(uintptr(0)) - 4]byte // union starts pointer-aligned
	Raw  [formatUnionSize]byte
}

// PixFormat is v4l2_pix_format, the single-plane capture format.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// PlanePixFormat is v4l2_plane_pix_format, one entry of PixFormatMPlane's
// per-plane array.
type PlanePixFormat struct {
	SizeImage    uint32
	BytesPerLine uint32
	Reserved     [6]uint16
}

// PixFormatMPlane is v4l2_pix_format_mplane, the multi-plane capture
// format.
type PixFormatMPlane struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	Colorspace   uint32
	PlaneFmt     [MaxPlanes]PlanePixFormat
	NumPlanes    uint8
	Flags        uint8
	YcbcrEnc     uint8
	Quantization uint8
	XferFunc     uint8
	Reserved     [7]uint8
}

// RequestBuffers is v4l2_requestbuffers (VIDIOC_REQBUFS).
type RequestBuffers struct {
	Count    uint32
	Type     uint32
	Memory   uint32
	Reserved [2]uint32
}

// Plane is v4l2_plane, one entry of a multi-plane Buffer's plane array.
type Plane struct {
	BytesUsed  uint32
	Length     uint32
	M          uint64 // mem_offset (low 32 bits) or userptr or fd, by Memory model
	DataOffset uint32
	Reserved   [11]uint32
}

// Timecode is v4l2_timecode, embedded in Buffer.
type Timecode struct {
	Type     uint32
	Flags    uint32
	Frames   uint8
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	UserBits [4]uint8
}

// Buffer is v4l2_buffer (VIDIOC_QBUF / VIDIOC_DQBUF / VIDIOC_QUERYBUF).
// M holds, depending on Memory and Type: a plane offset (MMAP,
// single-plane), a userptr (USERPTR, single-plane), or a pointer to a
// []Plane array (multi-plane, either memory model) — mirroring the
// kernel's union.
type Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	Timestamp unix.Timeval
	Timecode  Timecode
	Sequence  uint32
	Memory    uint32
	M         uint64
	Length    uint32
	Reserved2 uint32
	Reserved  uint32
}

// ExportBuffer is v4l2_exportbuffer (VIDIOC_EXPBUF).
type ExportBuffer struct {
	Type     uint32
	Index    uint32
	Plane    uint32
	Flags    uint32
	FD       int32
	Reserved [11]uint32
}

// Control is v4l2_control (VIDIOC_S_CTRL / VIDIOC_G_CTRL).
type Control struct {
	ID    uint32
	Value int32
}

// Fract is v4l2_fract.
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// CaptureParm is v4l2_captureparm, embedded in StreamParm.
type CaptureParm struct {
	Capability   uint32
	CaptureMode  uint32
	TimePerFrame Fract
	ExtendedMode uint32
	ReadBuffers  uint32
	Reserved     [4]uint32
}

// StreamParm is v4l2_streamparm (VIDIOC_S_PARM / VIDIOC_G_PARM). Only the
// `capture` arm of the union is modeled; the engine never opens an output
// device.
type StreamParm struct {
	Type    uint32
	Capture CaptureParm
	// pad keeps the struct at least as large as the kernel's union, which
	// is sized for v4l2_outputparm/v4l2_vbi_format/raw_data[200] too. Only
	// the capture arm is ever read or written.
	pad [200 - 4*10]byte
}

// Rect is v4l2_rect.
type Rect struct {
	Left   int32
	Top    int32
	Width  uint32
	Height uint32
}

// CropCap is v4l2_cropcap (VIDIOC_CROPCAP).
type CropCap struct {
	Type         uint32
	Bounds       Rect
	DefRect      Rect
	PixelAspect  Fract
}

// Crop is v4l2_crop (VIDIOC_S_CROP).
type Crop struct {
	Type uint32
	C    Rect
}
