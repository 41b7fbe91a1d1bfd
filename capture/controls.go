package capture

import (
	"math"
	"unsafe"

	"github.com/isgursoy/v4l2capture/v4l2"
)

// setControl issues VIDIOC_S_CTRL for id and reports whether the driver
// accepted it. Rejections are logged, never raised (spec §4.F control
// surface is best-effort per call).
func (e *Engine) setControl(id uint32, value int32) bool {
	ctrl := v4l2.Control{ID: id, Value: value}
	if err := e.ioctl(v4l2.VIDIOC_S_CTRL, unsafe.Pointer(&ctrl)); err != nil {
		e.log.Debug("S_CTRL rejected", loggerErr(err))
		return false
	}
	return true
}

// getControl issues VIDIOC_G_CTRL for id, returning 0 on any failure.
func (e *Engine) getControl(id uint32) int32 {
	ctrl := v4l2.Control{ID: id}
	if err := e.ioctl(v4l2.VIDIOC_G_CTRL, unsafe.Pointer(&ctrl)); err != nil {
		e.log.Debug("G_CTRL failed", loggerErr(err))
		return 0
	}
	return ctrl.Value
}

func boolToCtrl(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// Brightness returns V4L2_CID_BRIGHTNESS.
func (e *Engine) Brightness() int32 { return e.getControl(v4l2.CIDBrightness) }

// SetBrightness sets V4L2_CID_BRIGHTNESS.
func (e *Engine) SetBrightness(v int32) bool { return e.setControl(v4l2.CIDBrightness, v) }

// Contrast returns V4L2_CID_CONTRAST.
func (e *Engine) Contrast() int32 { return e.getControl(v4l2.CIDContrast) }

// SetContrast sets V4L2_CID_CONTRAST.
func (e *Engine) SetContrast(v int32) bool { return e.setControl(v4l2.CIDContrast, v) }

// Saturation returns V4L2_CID_SATURATION.
func (e *Engine) Saturation() int32 { return e.getControl(v4l2.CIDSaturation) }

// SetSaturation sets V4L2_CID_SATURATION.
func (e *Engine) SetSaturation(v int32) bool { return e.setControl(v4l2.CIDSaturation, v) }

// Hue returns V4L2_CID_HUE.
func (e *Engine) Hue() int32 { return e.getControl(v4l2.CIDHue) }

// SetHue sets V4L2_CID_HUE.
func (e *Engine) SetHue(v int32) bool { return e.setControl(v4l2.CIDHue, v) }

// Gain returns V4L2_CID_GAIN.
func (e *Engine) Gain() int32 { return e.getControl(v4l2.CIDGain) }

// SetGain sets V4L2_CID_GAIN.
func (e *Engine) SetGain(v int32) bool { return e.setControl(v4l2.CIDGain, v) }

// Sharpness returns V4L2_CID_SHARPNESS.
func (e *Engine) Sharpness() int32 { return e.getControl(v4l2.CIDSharpness) }

// SetSharpness sets V4L2_CID_SHARPNESS.
func (e *Engine) SetSharpness(v int32) bool { return e.setControl(v4l2.CIDSharpness, v) }

// WhiteBalanceTemperature returns V4L2_CID_WHITE_BALANCE_TEMPERATURE.
func (e *Engine) WhiteBalanceTemperature() int32 {
	return e.getControl(v4l2.CIDWhiteBalanceTemperature)
}

// SetWhiteBalanceTemperature sets V4L2_CID_WHITE_BALANCE_TEMPERATURE.
func (e *Engine) SetWhiteBalanceTemperature(v int32) bool {
	return e.setControl(v4l2.CIDWhiteBalanceTemperature, v)
}

// AutoWhiteBalance returns V4L2_CID_AUTO_WHITE_BALANCE as a bool.
func (e *Engine) AutoWhiteBalance() bool {
	return e.getControl(v4l2.CIDAutoWhiteBalance) != 0
}

// SetAutoWhiteBalance sets V4L2_CID_AUTO_WHITE_BALANCE.
func (e *Engine) SetAutoWhiteBalance(on bool) bool {
	return e.setControl(v4l2.CIDAutoWhiteBalance, boolToCtrl(on))
}

// Focus returns V4L2_CID_FOCUS_ABSOLUTE.
func (e *Engine) Focus() int32 { return e.getControl(v4l2.CIDFocusAbsolute) }

// SetFocus sets V4L2_CID_FOCUS_ABSOLUTE.
func (e *Engine) SetFocus(v int32) bool { return e.setControl(v4l2.CIDFocusAbsolute, v) }

// AutoFocus returns V4L2_CID_FOCUS_AUTO as a bool.
func (e *Engine) AutoFocus() bool { return e.getControl(v4l2.CIDFocusAuto) != 0 }

// SetAutoFocus sets V4L2_CID_FOCUS_AUTO.
func (e *Engine) SetAutoFocus(on bool) bool {
	return e.setControl(v4l2.CIDFocusAuto, boolToCtrl(on))
}

// Zoom returns V4L2_CID_ZOOM_ABSOLUTE.
func (e *Engine) Zoom() int32 { return e.getControl(v4l2.CIDZoomAbsolute) }

// SetZoom sets V4L2_CID_ZOOM_ABSOLUTE.
func (e *Engine) SetZoom(v int32) bool { return e.setControl(v4l2.CIDZoomAbsolute, v) }

// AutoExposureMode returns the current V4L2_CID_EXPOSURE_AUTO value.
func (e *Engine) AutoExposureMode() int32 { return e.getControl(v4l2.CIDExposureAuto) }

// SetAutoExposureMode sets V4L2_CID_EXPOSURE_AUTO to one of the
// ExposureAuto* constants in package v4l2.
func (e *Engine) SetAutoExposureMode(mode int32) bool {
	return e.setControl(v4l2.CIDExposureAuto, mode)
}

// AutoExposurePriority returns V4L2_CID_EXPOSURE_AUTO_PRIORITY as a bool.
func (e *Engine) AutoExposurePriority() bool {
	return e.getControl(v4l2.CIDExposureAutoPriority) != 0
}

// SetAutoExposurePriority sets V4L2_CID_EXPOSURE_AUTO_PRIORITY.
func (e *Engine) SetAutoExposurePriority(on bool) bool {
	return e.setControl(v4l2.CIDExposureAutoPriority, boolToCtrl(on))
}

// Exposure returns V4L2_CID_EXPOSURE_ABSOLUTE.
func (e *Engine) Exposure() int32 { return e.getControl(v4l2.CIDExposureAbsolute) }

// SetManualExposureValue switches the device to manual exposure and sets
// V4L2_CID_EXPOSURE_ABSOLUTE, matching the original implementation's
// set_manual_exposure_value (spec §12): a manual exposure value is
// meaningless while auto exposure is still active.
func (e *Engine) SetManualExposureValue(v int32) bool {
	if !e.setControl(v4l2.CIDExposureAuto, v4l2.ExposureAutoManual) {
		return false
	}
	return e.setControl(v4l2.CIDExposureAbsolute, v)
}

const fpsEpsilon = 0.01

// FPS returns the device's current frame rate via VIDIOC_G_PARM, or 0 if
// the driver doesn't report V4L2_CAP_TIMEPERFRAME.
func (e *Engine) FPS() float64 {
	var parm v4l2.StreamParm
	parm.Type = e.bufType
	if err := e.ioctl(v4l2.VIDIOC_G_PARM, unsafe.Pointer(&parm)); err != nil {
		e.log.Debug("G_PARM failed", loggerErr(err))
		return 0
	}
	if parm.Capture.Capability&v4l2.CapTimePerFrame == 0 {
		return 0
	}
	return fractToFPS(parm.Capture.TimePerFrame)
}

// setFPS issues VIDIOC_S_PARM requesting fps, returning the fps the
// driver actually granted when it differs from the request by more than
// fpsEpsilon, or 0 when the grant matches (spec §4.F set_fps semantics).
func (e *Engine) setFPS(fps float64) (float64, error) {
	var parm v4l2.StreamParm
	parm.Type = e.bufType
	parm.Capture.TimePerFrame = v4l2.Fract{Numerator: 1, Denominator: uint32(math.Round(fps))}
	if err := e.ioctl(v4l2.VIDIOC_S_PARM, unsafe.Pointer(&parm)); err != nil {
		return 0, err
	}
	if parm.Capture.TimePerFrame.Numerator == 0 {
		return 0, nil
	}
	actual := fractToFPS(parm.Capture.TimePerFrame)
	if math.Abs(actual-fps) <= fpsEpsilon {
		return 0, nil
	}
	return actual, nil
}

// SetFPS sets the frame rate, returning the driver's actual grant when it
// diverges from the request by more than fpsEpsilon, or 0 when the grant
// is within fpsEpsilon of the request (spec §4.F). A rejected S_PARM is
// logged and also returns 0.
func (e *Engine) SetFPS(fps float64) float64 {
	actual, err := e.setFPS(fps)
	if err != nil {
		e.log.Debug("S_PARM rejected", loggerErr(err))
		return 0
	}
	return actual
}

func fractToFPS(f v4l2.Fract) float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}
