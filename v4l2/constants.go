// Package v4l2 holds the Video4Linux2 wire types and ioctl request codes
// the capture engine issues against a kernel video device. It has no
// behavior of its own: every struct and constant here mirrors
// linux/videodev2.h closely enough to round-trip through ioctl(2).
package v4l2

import (
	"unsafe"

	"github.com/isgursoy/v4l2capture/internal/ioctl"
)

// Buffer types (v4l2_buf_type).
const (
	BufTypeVideoCapture       uint32 = 1
	BufTypeVideoCaptureMPlane uint32 = 9
)

// Memory models (v4l2_memory).
const (
	MemoryMMAP   uint32 = 1
	MemoryUserPtr uint32 = 2
	MemoryDMABUF uint32 = 4
)

// Capability flags (v4l2_capability.capabilities).
const (
	CapVideoCapture       uint32 = 0x00000001
	CapVideoCaptureMPlane uint32 = 0x00001000
	CapStreaming          uint32 = 0x04000000
)

// Field order (v4l2_field).
const (
	FieldAny        uint32 = 0
	FieldNone       uint32 = 1
	FieldInterlaced uint32 = 4
)

// Quantization (v4l2_quantization).
const (
	QuantizationDefault   uint32 = 0
	QuantizationFullRange uint32 = 1
	QuantizationLimRange  uint32 = 2
)

// Streamparm capability flags.
const CapTimePerFrame uint32 = 0x1000

// Control IDs (v4l2_cid). Only the ones the control surface exposes.
//
// V4L2 splits controls across classes, each with its own base: the user
// class (V4L2_CID_BASE, 0x00980900) holds image-adjustment controls, while
// the camera class (V4L2_CID_CAMERA_CLASS_BASE, 0x009a0900) holds lens and
// exposure controls. Offsets are only comparable within the same base.
const (
	cidBase uint32 = 0x00980900
	camBase uint32 = 0x009a0900

	CIDBrightness              = cidBase + 0
	CIDContrast                = cidBase + 1
	CIDSaturation              = cidBase + 2
	CIDHue                     = cidBase + 3
	CIDAutoWhiteBalance        = cidBase + 12
	CIDGain                    = cidBase + 19
	CIDSharpness               = cidBase + 27
	CIDWhiteBalanceTemperature = cidBase + 26

	CIDExposureAuto         = camBase + 1 // V4L2_CID_EXPOSURE_AUTO
	CIDExposureAbsolute     = camBase + 2
	CIDExposureAutoPriority = camBase + 3
	CIDFocusAbsolute        = camBase + 10
	CIDFocusAuto            = camBase + 12
	CIDZoomAbsolute         = camBase + 13
)

// Auto-exposure modes for CIDExposureAuto (v4l2_exposure_auto_type).
const (
	ExposureAutoAuto             int32 = 0
	ExposureAutoManual           int32 = 1
	ExposureAutoShutterPriority   int32 = 2
	ExposureAutoAperturePriority int32 = 3
)

// VIDEO_MAX_PLANES from linux/videodev2.h.
const MaxPlanes = 8

// Ioctl request codes, built once at package init the same way the
// teacher's ioctl subpackage built them.
var (
	VIDIOC_QUERYCAP  = ioctl.IoR('V', 0, unsafe.Sizeof(Capability{}))
	VIDIOC_ENUM_FMT  = ioctl.IoRW('V', 2, unsafe.Sizeof(FmtDesc{}))
	VIDIOC_S_FMT     = ioctl.IoRW('V', 5, unsafe.Sizeof(Format{}))
	VIDIOC_REQBUFS   = ioctl.IoRW('V', 8, unsafe.Sizeof(RequestBuffers{}))
	VIDIOC_QUERYBUF  = ioctl.IoRW('V', 9, unsafe.Sizeof(Buffer{}))
	VIDIOC_QBUF      = ioctl.IoRW('V', 15, unsafe.Sizeof(Buffer{}))
	VIDIOC_DQBUF     = ioctl.IoRW('V', 17, unsafe.Sizeof(Buffer{}))
	VIDIOC_STREAMON  = ioctl.IoW('V', 18, 4)
	VIDIOC_STREAMOFF = ioctl.IoW('V', 19, 4)
	VIDIOC_G_PARM    = ioctl.IoRW('V', 21, unsafe.Sizeof(StreamParm{}))
	VIDIOC_S_PARM    = ioctl.IoRW('V', 22, unsafe.Sizeof(StreamParm{}))
	VIDIOC_G_CTRL    = ioctl.IoRW('V', 27, unsafe.Sizeof(Control{}))
	VIDIOC_S_CTRL    = ioctl.IoRW('V', 28, unsafe.Sizeof(Control{}))
	VIDIOC_CROPCAP   = ioctl.IoRW('V', 58, unsafe.Sizeof(CropCap{}))
	VIDIOC_S_CROP    = ioctl.IoW('V', 60, unsafe.Sizeof(Crop{}))
	VIDIOC_EXPBUF    = ioctl.IoRW('V', 16, unsafe.Sizeof(ExportBuffer{}))
)

// PixelFormat is the closed set of pixel formats this engine negotiates.
type PixelFormat int

const (
	PixelFormatInvalid PixelFormat = iota
	PixelFormatYUYV422
	PixelFormatNV12
	PixelFormatNV12sp
	PixelFormatYUV422P
	PixelFormatMJPEG
	PixelFormatBGR24
	PixelFormatRGB24
)

// fourccTable maps the closed format set to the wire fourcc, per spec §4.A.
var fourccTable = map[PixelFormat][4]byte{
	PixelFormatYUYV422: {'Y', 'U', 'Y', 'V'},
	PixelFormatYUV422P: {'4', '2', '2', 'P'},
	PixelFormatNV12:    {'N', 'V', '1', '2'},
	PixelFormatNV12sp:  {'N', 'M', '1', '2'},
	PixelFormatMJPEG:   {'M', 'J', 'P', 'G'},
	PixelFormatBGR24:   {'B', 'G', 'R', '3'},
	PixelFormatRGB24:   {'R', 'G', 'B', '3'},
}

// planeCountTable derives plane count from the pixel format itself (not
// from the kernel's response), matching spec §9's plane-count-derivation
// design note.
var planeCountTable = map[PixelFormat]int{
	PixelFormatYUYV422: 1,
	PixelFormatMJPEG:   1,
	PixelFormatBGR24:   1,
	PixelFormatRGB24:   1,
	PixelFormatNV12:    1,
	PixelFormatNV12sp:  2,
	PixelFormatYUV422P: 3,
}

// FourCC returns the wire fourcc code for f and whether f is a known format.
func FourCC(f PixelFormat) (code uint32, ok bool) {
	b, ok := fourccTable[f]
	if !ok {
		return 0, false
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
}

// PlaneCount returns the number of visual planes f decomposes into,
// independent of buffer type (single- vs multi-plane capture).
func PlaneCount(f PixelFormat) (int, bool) {
	n, ok := planeCountTable[f]
	return n, ok
}

// IsMJPEG reports whether f is the MJPEG format, which gets full-range
// quantization and V4L2_FIELD_NONE instead of the limited-range/
// interlaced defaults every other format uses (spec §4.A): an MJPEG stream
// is self-contained and carries its own colorimetry.
func IsMJPEG(f PixelFormat) bool {
	return f == PixelFormatMJPEG
}
