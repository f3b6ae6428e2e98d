package capture

import (
	"fmt"

	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
)

// Facing modes.
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

// Settings is the capture configuration supplied by the host. It is
// replaced as a whole by Widget.Configure.
type Settings struct {
	FacingMode        string           `json:"facing_mode"`
	IdealResolution   geometry.Size    `json:"ideal_resolution"` // zero = camera.DefaultResolution
	MaxResolution     bool             `json:"max_resolution"`   // ignore IdealResolution
	ImageType         camera.ImageType `json:"image_type"`
	Compression       float64          `json:"compression"` // 0-1
	SizeFactor        float64          `json:"size_factor"` // 0 < f <= 1
	Mirror            bool             `json:"mirror"`
	SilentMode        bool             `json:"silent_mode"`
	Fullscreen        bool             `json:"fullscreen"`
	CountdownStart    int              `json:"countdown_start"`
	DisplayStartError bool             `json:"display_start_error"`
}

// DefaultSettings returns the settings used when the host sets nothing.
func DefaultSettings() Settings {
	return Settings{
		FacingMode:        FacingUser,
		ImageType:         camera.JPG,
		Compression:       0.92,
		SizeFactor:        1,
		Mirror:            true,
		CountdownStart:    3,
		DisplayStartError: true,
	}
}

// Validate checks field ranges.
func (s Settings) Validate() error {
	if s.FacingMode != FacingUser && s.FacingMode != FacingEnvironment {
		return fmt.Errorf("facing_mode must be %q or %q, got %q", FacingUser, FacingEnvironment, s.FacingMode)
	}
	if s.IdealResolution.Width < 0 || s.IdealResolution.Height < 0 {
		return fmt.Errorf("ideal_resolution must not be negative, got %s", s.IdealResolution)
	}
	switch s.ImageType {
	case camera.JPG, camera.PNG:
	default:
		return fmt.Errorf("image_type must be jpg or png, got %q", s.ImageType)
	}
	if s.Compression < 0 || s.Compression > 1 {
		return fmt.Errorf("compression must be between 0 and 1, got %.2f", s.Compression)
	}
	if s.SizeFactor <= 0 || s.SizeFactor > 1 {
		return fmt.Errorf("size_factor must be in (0, 1], got %.2f", s.SizeFactor)
	}
	if s.CountdownStart < 0 {
		return fmt.Errorf("countdown_start must be >= 0, got %d", s.CountdownStart)
	}
	return nil
}

// needsRestart reports whether moving from prev to s requires a new camera
// session. Only the stream request fields count.
func (s Settings) needsRestart(prev Settings) bool {
	return s.FacingMode != prev.FacingMode ||
		s.IdealResolution != prev.IdealResolution ||
		s.MaxResolution != prev.MaxResolution
}

func (s Settings) stillOptions() camera.StillOptions {
	return camera.StillOptions{
		SizeFactor:  s.SizeFactor,
		Type:        s.ImageType,
		Compression: s.Compression,
		Mirror:      s.Mirror,
	}
}
