//go:build linux

package camera

import (
	"context"
	"image"
	"io/fs"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
)

// V4L2 is an Adapter for Video4Linux devices. Each facing mode maps to a
// device node (a booth usually has a front "user" camera and optionally a
// rear "environment" one).
type V4L2 struct {
	devices      map[string]string
	frameTimeout uint32 // seconds
	buffers      uint32

	mu      sync.Mutex
	cam     *webcam.Webcam
	stream  *Stream
	fourcc  uint32
	size    geometry.Size
	latest  []byte
	readErr error
	stop    chan struct{}
	done    chan struct{}
}

// NewV4L2 creates an adapter over the given facing mode -> device map.
func NewV4L2(devices map[string]string, frameTimeout time.Duration, buffers int) *V4L2 {
	timeout := uint32(frameTimeout / time.Second)
	if timeout == 0 {
		timeout = 5
	}
	if buffers <= 0 {
		buffers = 4
	}
	return &V4L2{
		devices:      devices,
		frameTimeout: timeout,
		buffers:      uint32(buffers),
	}
}

func (c *V4L2) StartIdeal(ctx context.Context, facingMode string, ideal geometry.Size) (*Stream, error) {
	if ideal.Width <= 0 || ideal.Height <= 0 {
		ideal = DefaultResolution
	}
	return c.start(ctx, facingMode, func(modes []geometry.Range) (geometry.Size, bool) {
		return geometry.Closest(modes, ideal)
	})
}

func (c *V4L2) StartMax(ctx context.Context, facingMode string) (*Stream, error) {
	return c.start(ctx, facingMode, geometry.Largest)
}

func (c *V4L2) start(ctx context.Context, facingMode string, pick func([]geometry.Range) (geometry.Size, bool)) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cam != nil {
		return nil, ErrAlreadyStarted
	}

	device, ok := c.devices[facingMode]
	if !ok || device == "" {
		return nil, errors.Wrapf(ErrUnknownFacingMode, "facing mode %q", facingMode)
	}

	cam, err := webcam.Open(device)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, ErrPermissionDenied
		}
		return nil, errors.Wrapf(err, "Can not open device %s", device)
	}

	stream, err := c.configure(cam, device, facingMode, pick)
	if err != nil {
		cam.Close()
		return nil, err
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "Can not start streaming")
	}

	c.cam = cam
	c.stream = stream
	c.latest = nil
	c.readErr = nil
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.read(cam, c.stop, c.done)

	debug.Info("Camera %s streaming %s %s", device, stream.Format, stream.Size)
	return stream, nil
}

// configure negotiates pixel format and frame size, MJPEG first, YUYV second.
func (c *V4L2) configure(cam *webcam.Webcam, device, facingMode string, pick func([]geometry.Range) (geometry.Size, bool)) (*Stream, error) {
	formats := cam.GetSupportedFormats()
	var format webcam.PixelFormat
	found := false
	for _, want := range []uint32{fourccMJPEG, fourccYUYV} {
		if _, ok := formats[webcam.PixelFormat(want)]; ok {
			format = webcam.PixelFormat(want)
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Errorf("%s: no supported pixel format (have %v)", device, formats)
	}

	var modes []geometry.Range
	for _, m := range cam.GetSupportedFrameSizes(format) {
		modes = append(modes, geometry.Range{
			Min:  geometry.Size{Width: int(m.MinWidth), Height: int(m.MinHeight)},
			Max:  geometry.Size{Width: int(m.MaxWidth), Height: int(m.MaxHeight)},
			Step: geometry.Size{Width: int(m.StepWidth), Height: int(m.StepHeight)},
		})
	}
	size, ok := pick(modes)
	if !ok {
		return nil, errors.Errorf("%s: no frame sizes for %s", device, formatName(uint32(format)))
	}
	debug.Verbose("Camera %s: %d modes, requesting %s", device, len(modes), size)

	got, w, h, err := cam.SetImageFormat(format, uint32(size.Width), uint32(size.Height))
	if err != nil {
		return nil, errors.Wrap(err, "Can not set image format")
	}
	if err := cam.SetBufferCount(c.buffers); err != nil {
		return nil, errors.Wrap(err, "Can not set buffer count")
	}

	c.fourcc = uint32(got)
	c.size = geometry.Size{Width: int(w), Height: int(h)}
	return &Stream{
		Device:     device,
		FacingMode: facingMode,
		Size:       c.size,
		Format:     formatName(c.fourcc),
		StartedAt:  time.Now(),
	}, nil
}

// read keeps the most recent frame until stop is closed.
func (c *V4L2) read(cam *webcam.Webcam, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		err := cam.WaitForFrame(c.frameTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			debug.Trace("Camera frame timeout")
			continue
		default:
			c.fail(errors.Wrap(err, "Frame wait failed"))
			return
		}

		frame, err := cam.ReadFrame()
		if err != nil {
			c.fail(errors.Wrap(err, "Read frame failed"))
			return
		}
		if len(frame) == 0 {
			continue
		}

		buf := make([]byte, len(frame))
		copy(buf, frame)
		c.mu.Lock()
		c.latest = buf
		c.mu.Unlock()
	}
}

func (c *V4L2) fail(err error) {
	debug.Error(err)
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

func (c *V4L2) Stop(ctx context.Context) error {
	c.mu.Lock()
	cam, stop, done := c.cam, c.stop, c.done
	if cam == nil {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.cam = nil
	c.stream = nil
	c.latest = nil
	c.mu.Unlock()

	close(stop)
	release := func() error {
		<-done
		if err := cam.StopStreaming(); err != nil {
			cam.Close()
			return errors.Wrap(err, "Can not stop streaming")
		}
		return errors.Wrap(cam.Close(), "Can not close device")
	}

	select {
	case <-done:
		return release()
	case <-ctx.Done():
		// The reader exits within one frame timeout; release the device then.
		go func() {
			if err := release(); err != nil {
				debug.Error(err)
			}
		}()
		return ctx.Err()
	}
}

func (c *V4L2) Frame() (image.Image, error) {
	c.mu.Lock()
	if c.cam == nil {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	data, fourcc, size, readErr := c.latest, c.fourcc, c.size, c.readErr
	c.mu.Unlock()

	if data == nil {
		if readErr != nil {
			return nil, readErr
		}
		return nil, ErrNoFrame
	}
	return decodeFrame(fourcc, size.Width, size.Height, data)
}

func (c *V4L2) Still(opts StillOptions) (string, error) {
	img, err := c.Frame()
	if err != nil {
		return "", err
	}
	return Encode(img, opts)
}
