// Package camera is the camera-access layer of the booth: it negotiates a
// video stream for a facing mode and resolution, keeps the latest frame for
// the live preview, and encodes still images.
package camera

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
)

var (
	// ErrNotStarted is returned when an operation needs a running stream.
	ErrNotStarted = errors.New("camera not started")

	// ErrAlreadyStarted is returned by a start request while a stream runs.
	ErrAlreadyStarted = errors.New("camera already started")

	// ErrNoFrame is returned when the stream has not delivered a frame yet.
	ErrNoFrame = errors.New("no frame received yet")

	// ErrUnknownFacingMode is returned for a facing mode with no device.
	ErrUnknownFacingMode = errors.New("unknown facing mode")

	// ErrPermissionDenied is returned when the device cannot be opened for
	// lack of permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// DefaultResolution is requested when no ideal resolution is configured.
var DefaultResolution = geometry.Size{Width: 640, Height: 480}

// Stream describes a running camera session. It is handed to the
// camera-start callback.
type Stream struct {
	Device     string        `json:"device"`
	FacingMode string        `json:"facing_mode"`
	Size       geometry.Size `json:"size"`
	Format     string        `json:"format"`
	StartedAt  time.Time     `json:"started_at"`
}

// ImageType is a still image encoding.
type ImageType string

const (
	JPG ImageType = "jpg"
	PNG ImageType = "png"
)

// StillOptions controls still image encoding.
type StillOptions struct {
	SizeFactor  float64   // output scale, 0 < f <= 1
	Type        ImageType // jpg or png
	Compression float64   // JPEG quality 0-1
	Mirror      bool      // flip horizontally
}

// Adapter is the camera-access contract the capture widget depends on.
// Start and Stop may block on the device; Still and Frame need a
// running stream.
type Adapter interface {
	// StartIdeal starts a stream as close as possible to the ideal size.
	// A zero ideal size requests DefaultResolution.
	StartIdeal(ctx context.Context, facingMode string, ideal geometry.Size) (*Stream, error)
	// StartMax starts a stream at the largest size the device supports.
	StartMax(ctx context.Context, facingMode string) (*Stream, error)
	// Stop tears the stream down.
	Stop(ctx context.Context) error
	// Still encodes the current frame as a data URI.
	Still(opts StillOptions) (string, error)
	// Frame returns the latest decoded frame.
	Frame() (image.Image, error)
}
