// Package config loads a capture.Config from a YAML device manifest, for
// deployments that keep capture parameters alongside other service
// configuration rather than constructing capture.Config in Go directly.
// It only builds the struct; opening the device is still capture.New's
// job.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/isgursoy/v4l2capture/capture"
	"github.com/isgursoy/v4l2capture/internal/logging"
	"github.com/isgursoy/v4l2capture/v4l2"
)

// Manifest is the on-disk shape of a device manifest file. Field names
// match the YAML keys a deployment would actually hand-edit.
type Manifest struct {
	DeviceIndex    int    `yaml:"device_index"`
	Width          uint32 `yaml:"width"`
	Height         uint32 `yaml:"height"`
	FPS            uint32 `yaml:"fps"`
	PixelFormat    string `yaml:"pixel_format"`
	NumBuffers     uint32 `yaml:"num_buffers"`
	Buffering      string `yaml:"buffering"`       // "internal" (default) or "userptr"
	FrameSelection string `yaml:"frame_selection"` // "oldest" (default) or "only_newest"
	Contiguous     *bool  `yaml:"contiguous"`      // defaults true when absent
	SelectTimeout  string `yaml:"select_timeout"`  // duration string, e.g. "200ms"
	LogLevel       string `yaml:"log_level"`       // "debug"/"info"/"warn"/"error"; empty keeps the no-op logger
	Crop           *struct {
		X uint32 `yaml:"x"`
		Y uint32 `yaml:"y"`
		W uint32 `yaml:"w"`
		H uint32 `yaml:"h"`
	} `yaml:"crop"`
}

var pixelFormatNames = map[string]v4l2.PixelFormat{
	"yuyv422": v4l2.PixelFormatYUYV422,
	"nv12":    v4l2.PixelFormatNV12,
	"nv12sp":  v4l2.PixelFormatNV12sp,
	"yuv422p": v4l2.PixelFormatYUV422P,
	"mjpeg":   v4l2.PixelFormatMJPEG,
	"bgr24":   v4l2.PixelFormatBGR24,
	"rgb24":   v4l2.PixelFormatRGB24,
}

// Load reads a YAML manifest from path and builds a capture.Config from
// it, layered over capture.DefaultConfig for any field the manifest
// leaves unset.
func Load(path string) (capture.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return capture.Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return capture.Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return FromManifest(m)
}

// FromManifest builds a capture.Config from an already-parsed Manifest.
func FromManifest(m Manifest) (capture.Config, error) {
	cfg := capture.DefaultConfig()

	cfg.DeviceIndex = m.DeviceIndex
	cfg.Width = m.Width
	cfg.Height = m.Height
	cfg.FPS = m.FPS

	pf, ok := pixelFormatNames[m.PixelFormat]
	if !ok {
		return capture.Config{}, fmt.Errorf("config: unknown pixel_format %q", m.PixelFormat)
	}
	cfg.PixelFormat = pf

	if m.NumBuffers > 0 {
		cfg.NumBuffers = m.NumBuffers
	}

	switch m.Buffering {
	case "", "internal":
		cfg.Buffering = capture.Internal
	case "userptr":
		cfg.Buffering = capture.UserPtr
	default:
		return capture.Config{}, fmt.Errorf("config: unknown buffering %q", m.Buffering)
	}

	switch m.FrameSelection {
	case "", "oldest":
		cfg.FrameSelect = capture.Oldest
	case "only_newest":
		cfg.FrameSelect = capture.OnlyNewest
	default:
		return capture.Config{}, fmt.Errorf("config: unknown frame_selection %q", m.FrameSelection)
	}

	if m.Contiguous != nil {
		cfg.Contiguous = *m.Contiguous
	}

	if m.SelectTimeout != "" {
		d, err := time.ParseDuration(m.SelectTimeout)
		if err != nil {
			return capture.Config{}, fmt.Errorf("config: bad select_timeout %q: %w", m.SelectTimeout, err)
		}
		cfg.SelectTimeout = d
	}

	if m.Crop != nil {
		cfg.Crop = capture.CropRect{X: m.Crop.X, Y: m.Crop.Y, W: m.Crop.W, H: m.Crop.H}
	}

	if m.LogLevel != "" {
		if err := logging.Init(m.LogLevel); err != nil {
			return capture.Config{}, fmt.Errorf("config: building %q logger: %w", m.LogLevel, err)
		}
		cfg.Logger = logging.L()
	}

	return cfg, nil
}
