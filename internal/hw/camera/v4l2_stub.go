//go:build !linux

package camera

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
)

var errV4L2Unsupported = errors.New("v4l2 capture is only available on linux")

// V4L2 is unavailable on this platform; every start fails.
type V4L2 struct{}

// NewV4L2 returns an adapter that reports V4L2 as unsupported.
func NewV4L2(devices map[string]string, frameTimeout time.Duration, buffers int) *V4L2 {
	return &V4L2{}
}

func (c *V4L2) StartIdeal(ctx context.Context, facingMode string, ideal geometry.Size) (*Stream, error) {
	return nil, errV4L2Unsupported
}

func (c *V4L2) StartMax(ctx context.Context, facingMode string) (*Stream, error) {
	return nil, errV4L2Unsupported
}

func (c *V4L2) Stop(ctx context.Context) error { return ErrNotStarted }

func (c *V4L2) Still(opts StillOptions) (string, error) { return "", ErrNotStarted }

func (c *V4L2) Frame() (image.Image, error) { return nil, ErrNotStarted }
