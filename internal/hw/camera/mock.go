package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
)

// Mock is an Adapter that produces a synthetic test pattern. It is used for
// development without a camera and in tests; start, stop and still failures
// can be injected.
type Mock struct {
	modes []geometry.Range

	mu       sync.Mutex
	stream   *Stream
	frames   int
	startErr error
	stopErr  error
	stillErr error
	calls    []string
}

// NewMock returns a Mock advertising common webcam modes up to 1920x1080.
func NewMock() *Mock {
	return &Mock{
		modes: []geometry.Range{
			geometry.Discrete(geometry.Size{Width: 320, Height: 240}),
			geometry.Discrete(geometry.Size{Width: 640, Height: 480}),
			geometry.Discrete(geometry.Size{Width: 1280, Height: 720}),
			geometry.Discrete(geometry.Size{Width: 1920, Height: 1080}),
		},
	}
}

// FailStart makes subsequent starts fail with err (nil to recover).
func (m *Mock) FailStart(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// FailStop makes subsequent stops fail with err (nil to recover).
func (m *Mock) FailStop(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr = err
}

// FailStill makes subsequent stills fail with err (nil to recover).
func (m *Mock) FailStill(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stillErr = err
}

// Calls returns the adapter requests received so far, e.g.
// "start-ideal user 1280x720", "start-max environment", "stop".
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Running reports whether a stream is active.
func (m *Mock) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}

func (m *Mock) StartIdeal(ctx context.Context, facingMode string, ideal geometry.Size) (*Stream, error) {
	if ideal.Width <= 0 || ideal.Height <= 0 {
		ideal = DefaultResolution
	}
	size, _ := geometry.Closest(m.modes, ideal)
	return m.start(ctx, fmt.Sprintf("start-ideal %s %s", facingMode, ideal), facingMode, size)
}

func (m *Mock) StartMax(ctx context.Context, facingMode string) (*Stream, error) {
	size, _ := geometry.Largest(m.modes)
	return m.start(ctx, "start-max "+facingMode, facingMode, size)
}

func (m *Mock) start(ctx context.Context, call, facingMode string, size geometry.Size) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.startErr != nil {
		return nil, m.startErr
	}
	if m.stream != nil {
		return nil, ErrAlreadyStarted
	}
	m.stream = &Stream{
		Device:     "mock://" + facingMode,
		FacingMode: facingMode,
		Size:       size,
		Format:     "RGBA",
		StartedAt:  time.Now(),
	}
	m.frames = 0
	debug.Info("Mock camera streaming %s (%s)", size, facingMode)
	s := *m.stream
	return &s, nil
}

func (m *Mock) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "stop")

	if m.stopErr != nil {
		return m.stopErr
	}
	if m.stream == nil {
		return ErrNotStarted
	}
	m.stream = nil
	return nil
}

func (m *Mock) Frame() (image.Image, error) {
	m.mu.Lock()
	if m.stream == nil {
		m.mu.Unlock()
		return nil, ErrNotStarted
	}
	m.frames++
	size, facing, n := m.stream.Size, m.stream.FacingMode, m.frames
	m.mu.Unlock()

	return testPattern(size, fmt.Sprintf("SnapGo %s #%d", facing, n)), nil
}

func (m *Mock) Still(opts StillOptions) (string, error) {
	m.mu.Lock()
	stillErr := m.stillErr
	m.mu.Unlock()
	if stillErr != nil {
		return "", stillErr
	}

	img, err := m.Frame()
	if err != nil {
		return "", err
	}
	return Encode(img, opts)
}

// testPattern draws a diagonal gradient with a label in the top-left corner.
// The left half is brighter in red so that mirroring is observable.
func testPattern(size geometry.Size, label string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			r := uint8(255 - 255*x/max(size.Width, 1))
			g := uint8(255 * y / max(size.Height, 1))
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: 128, A: 255})
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, 20),
	}
	d.DrawString(label)
	return img
}
