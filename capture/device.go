package capture

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/isgursoy/v4l2capture/v4l2"
)

// negotiatedFormat is what openAndNegotiate reports back after S_FMT: the
// driver is free to change width/height/sizeimage from what was requested.
type negotiatedFormat struct {
	width, height uint32
	planeSizes    []uint32 // len == bufferPlanes, per-buffer-plane sizeimage
}

// openAndNegotiate implements the Device Opener component (spec §4.A): it
// resolves the device path, opens it, verifies capabilities, applies the
// optional crop, and issues S_FMT exactly once.
func (e *Engine) openAndNegotiate() (negotiatedFormat, error) {
	path := e.cfg.devicePath()

	isChar, err := e.sys.stat(path)
	if err != nil || !isChar {
		if err == nil {
			err = errNotCharDevice
		}
		return negotiatedFormat{}, &DeviceUnavailableError{Path: path, Err: err}
	}

	fd, err := e.sys.open(path, unix.O_RDWR|unix.O_NONBLOCK)
	if err != nil {
		return negotiatedFormat{}, &DeviceUnavailableError{Path: path, Err: err}
	}
	e.fd = fd

	var cap v4l2.Capability
	if err := e.ioctl(v4l2.VIDIOC_QUERYCAP, unsafe.Pointer(&cap)); err != nil {
		return negotiatedFormat{}, &DeviceUnavailableError{Path: path, Err: err}
	}
	need := v4l2.CapStreaming
	if e.cfg.Contiguous {
		need |= v4l2.CapVideoCapture
	} else {
		need |= v4l2.CapVideoCaptureMPlane
	}
	if cap.Capabilities&need != need {
		return negotiatedFormat{}, &DeviceUnavailableError{Path: path, Err: errCapabilityMissing}
	}

	e.applyCrop()

	fourcc, ok := v4l2.FourCC(e.cfg.PixelFormat)
	if !ok {
		// guarded earlier in New, kept here for direct callers of this method
		return negotiatedFormat{}, &UnsupportedFormatError{Format: e.cfg.PixelFormat}
	}

	field := v4l2.FieldInterlaced
	quant := v4l2.QuantizationLimRange
	if v4l2.IsMJPEG(e.cfg.PixelFormat) {
		field = v4l2.FieldNone
		quant = v4l2.QuantizationFullRange
	}

	var format v4l2.Format
	format.Type = e.bufType
	var out negotiatedFormat
	if e.bufType == v4l2.BufTypeVideoCaptureMPlane {
		planeCount, _ := v4l2.PlaneCount(e.cfg.PixelFormat)
		mp := v4l2.PixFormatMPlane{
			Width:        e.cfg.Width,
			Height:       e.cfg.Height,
			PixelFormat:  fourcc,
			Field:        field,
			Quantization: uint8(quant),
			NumPlanes:    uint8(planeCount),
		}
		format.PutPixFormatMPlane(mp)
		if err := e.ioctl(v4l2.VIDIOC_S_FMT, unsafe.Pointer(&format)); err != nil {
			return negotiatedFormat{}, &FormatRejectedError{Err: err}
		}
		mp = format.PixFormatMPlane()
		out.width, out.height = mp.Width, mp.Height
		out.planeSizes = make([]uint32, planeCount)
		for i := 0; i < planeCount; i++ {
			out.planeSizes[i] = mp.PlaneFmt[i].SizeImage
		}
	} else {
		pf := v4l2.PixFormat{
			Width:        e.cfg.Width,
			Height:       e.cfg.Height,
			PixelFormat:  fourcc,
			Field:        field,
			Quantization: quant,
		}
		format.PutPixFormat(pf)
		if err := e.ioctl(v4l2.VIDIOC_S_FMT, unsafe.Pointer(&format)); err != nil {
			return negotiatedFormat{}, &FormatRejectedError{Err: err}
		}
		pf = format.PixFormat()
		out.width, out.height = pf.Width, pf.Height
		out.planeSizes = []uint32{pf.SizeImage}
	}

	e.negotiateFPS()
	e.applyDefaultExposure()

	return out, nil
}

// applyCrop issues CROPCAP/S_CROP per spec §12 (supplemented from the
// original implementation): CROPCAP is probed first, and S_CROP is only
// attempted - and only after a successful CROPCAP - when the caller asked
// for a non-zero crop rectangle. Any failure here is logged and ignored;
// cropping is a best-effort refinement, never load-bearing.
func (e *Engine) applyCrop() {
	if e.cfg.Crop.isZero() {
		return
	}
	var cc v4l2.CropCap
	cc.Type = e.bufType
	if err := e.ioctl(v4l2.VIDIOC_CROPCAP, unsafe.Pointer(&cc)); err != nil {
		e.log.Debug("CROPCAP not supported, skipping crop")
		return
	}
	var crop v4l2.Crop
	crop.Type = e.bufType
	crop.C = v4l2.Rect{
		Left:   int32(e.cfg.Crop.X),
		Top:    int32(e.cfg.Crop.Y),
		Width:  e.cfg.Crop.W,
		Height: e.cfg.Crop.H,
	}
	if err := e.ioctl(v4l2.VIDIOC_S_CROP, unsafe.Pointer(&crop)); err != nil {
		e.log.Debug("S_CROP rejected, continuing uncropped", loggerErr(err))
	}
}

// negotiateFPS issues S_PARM right after S_FMT, the way the original
// implementation's setup_device does, before buffers are ever allocated.
// A rejected S_PARM is logged and otherwise ignored (spec §12).
func (e *Engine) negotiateFPS() {
	if e.cfg.FPS == 0 {
		return
	}
	if _, err := e.setFPS(float64(e.cfg.FPS)); err != nil {
		e.log.Debug("fps negotiation rejected by driver", loggerErr(err))
	}
}

// applyDefaultExposure sets aperture-priority auto exposure and disables
// exposure-auto-priority immediately after format negotiation, matching
// the original implementation's setup defaults (spec §12). Best-effort:
// a driver without these controls just logs and moves on.
func (e *Engine) applyDefaultExposure() {
	if !e.setControl(v4l2.CIDExposureAuto, v4l2.ExposureAutoAperturePriority) {
		e.log.Debug("driver has no V4L2_CID_EXPOSURE_AUTO control")
	}
	if !e.setControl(v4l2.CIDExposureAutoPriority, 0) {
		e.log.Debug("driver has no V4L2_CID_EXPOSURE_AUTO_PRIORITY control")
	}
}
