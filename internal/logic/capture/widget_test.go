package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/SnapGo/internal/clock"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/logic/countdown"
	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
)

// recorder records host callbacks.
type recorder struct {
	mu       sync.Mutex
	photos   []string
	starts   []*camera.Stream
	stops    int
	errs     []error
	before   int
	clicks   int
	surfaces []Surface
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnTakePhoto: func(data string) {
			r.mu.Lock()
			r.photos = append(r.photos, data)
			r.mu.Unlock()
		},
		OnCameraStart: func(s *camera.Stream) {
			r.mu.Lock()
			r.starts = append(r.starts, s)
			r.mu.Unlock()
		},
		OnCameraStop: func() {
			r.mu.Lock()
			r.stops++
			r.mu.Unlock()
		},
		OnCameraError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnBeforeTakePhoto: func() {
			r.mu.Lock()
			r.before++
			r.mu.Unlock()
		},
		OnChange: func(s Surface) {
			r.mu.Lock()
			r.surfaces = append(r.surfaces, s)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) Click() {
	r.mu.Lock()
	r.clicks++
	r.mu.Unlock()
}

func (r *recorder) photoCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.photos)
}

func (r *recorder) errList() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type harness struct {
	t     *testing.T
	clock *clock.Fake
	cam   *camera.Mock
	rec   *recorder
	w     *Widget
}

func newHarness(t *testing.T, s Settings, setup func(*camera.Mock)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: clock.NewFake(time.Unix(1700000000, 0)),
		cam:   camera.NewMock(),
		rec:   &recorder{},
	}
	if setup != nil {
		setup(h.cam)
	}
	w, err := New(h.cam, s, h.rec.callbacks(), Options{Clock: h.clock, Shutter: h.rec})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.w = w
	t.Cleanup(w.Close)
	w.WaitIdle()
	return h
}

func (h *harness) trigger() {
	h.t.Helper()
	if err := h.w.Trigger(); err != nil {
		h.t.Fatalf("Trigger: %v", err)
	}
}

func (h *harness) configure(s Settings) {
	h.t.Helper()
	if err := h.w.Configure(s); err != nil {
		h.t.Fatalf("Configure: %v", err)
	}
	h.w.WaitIdle()
}

func settingsWith(mod func(*Settings)) Settings {
	s := DefaultSettings()
	if mod != nil {
		mod(&s)
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	cb := Callbacks{OnTakePhoto: func(string) {}}

	if _, err := New(nil, DefaultSettings(), cb, Options{}); err == nil {
		t.Error("expected error for nil adapter")
	}
	if _, err := New(camera.NewMock(), DefaultSettings(), Callbacks{}, Options{}); err == nil {
		t.Error("expected error for missing OnTakePhoto")
	}
	bad := settingsWith(func(s *Settings) { s.FacingMode = "sideways" })
	if _, err := New(camera.NewMock(), bad, cb, Options{}); err == nil {
		t.Error("expected error for invalid settings")
	}
}

func TestWidget_StartsCameraOnMount(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	s := h.w.Surface()
	if s.Session != "active" || !s.VideoVisible || s.Trigger != TriggerCapture {
		t.Errorf("surface after mount = %+v", s)
	}
	if got := h.cam.Calls(); len(got) != 1 || got[0] != "start-ideal user 640x480" {
		t.Errorf("calls = %v", got)
	}
	if len(h.rec.starts) != 1 || h.rec.starts[0].Size != camera.DefaultResolution {
		t.Errorf("OnCameraStart streams = %v", h.rec.starts)
	}
}

func TestWidget_StartsAtMaxResolution(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) {
		s.MaxResolution = true
		s.IdealResolution = geometry.Size{Width: 320, Height: 240}
	}), nil)

	if got := h.cam.Calls(); len(got) != 1 || got[0] != "start-max user" {
		t.Errorf("calls = %v, want [start-max user]", got)
	}
}

func TestWidget_CountdownScenario(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) {
		s.CountdownStart = 3
		s.SilentMode = false
	}), nil)

	h.trigger()
	if h.rec.clicks != 1 {
		t.Errorf("shutter clicks = %d, want 1", h.rec.clicks)
	}
	s := h.w.Surface()
	if !s.CountdownVisible || s.Countdown != 3 || s.Trigger != TriggerHidden {
		t.Fatalf("surface after trigger = %+v", s)
	}

	for _, want := range []int{2, 1, 0} {
		h.clock.Advance(countdown.Interval)
		if s := h.w.Surface(); s.Countdown != want {
			t.Errorf("countdown = %d, want %d", s.Countdown, want)
		}
		if h.rec.photoCount() != 0 {
			t.Fatal("photo taken before countdown completion")
		}
	}

	h.clock.Advance(countdown.Interval)
	if h.rec.photoCount() != 1 {
		t.Fatalf("photos = %d, want 1 after 4 intervals", h.rec.photoCount())
	}
	if !strings.HasPrefix(h.rec.photos[0], "data:image/jpeg;base64,") {
		t.Errorf("photo is not a jpeg data URI: %.40s", h.rec.photos[0])
	}
	if h.rec.before != 1 {
		t.Errorf("OnBeforeTakePhoto calls = %d, want 1", h.rec.before)
	}
	s = h.w.Surface()
	if !s.FlashVisible || !s.ImageVisible || s.VideoVisible || s.CountdownVisible || s.Trigger != TriggerDiscard {
		t.Errorf("surface after capture = %+v", s)
	}
	p, ok := h.w.Photo()
	if !ok || p.DataURI != h.rec.photos[0] || p.ID == "" || s.ImageID != p.ID {
		t.Errorf("Photo() = %+v, %v (surface image id %q)", p, ok, s.ImageID)
	}

	h.clock.Advance(FlashDuration - time.Millisecond)
	if !h.w.Surface().FlashVisible {
		t.Error("flash cleared early")
	}
	h.clock.Advance(time.Millisecond)
	s = h.w.Surface()
	if s.FlashVisible || s.Phase != "reviewing" || !s.ImageVisible {
		t.Errorf("surface after flash = %+v", s)
	}
}

func TestWidget_SilentMode(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.SilentMode = true }), nil)
	h.trigger()
	if h.rec.clicks != 0 {
		t.Errorf("shutter clicked %d times in silent mode", h.rec.clicks)
	}
}

func TestWidget_TriggerWhileReviewingReturnsToLiveFeed(t *testing.T) {
	for _, wait := range []time.Duration{0, FlashDuration} {
		h := newHarness(t, settingsWith(func(s *Settings) { s.CountdownStart = 0 }), nil)

		h.trigger()
		h.clock.Advance(wait)
		h.trigger()

		s := h.w.Surface()
		if s.Phase != "live" || s.ImageVisible || s.FlashVisible || !s.VideoVisible || s.Trigger != TriggerCapture {
			t.Errorf("wait %v: surface after discard = %+v", wait, s)
		}
		if _, ok := h.w.Photo(); ok {
			t.Errorf("wait %v: image not cleared", wait)
		}
		if h.clock.Pending() != 0 {
			t.Errorf("wait %v: flash timer still pending", wait)
		}
		h.clock.Advance(time.Second)
		if got := h.w.Surface().Phase; got != "live" {
			t.Errorf("wait %v: phase = %s after discard", wait, got)
		}
	}
}

func TestWidget_TriggerIgnoredDuringCountdown(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	h.trigger()
	h.clock.Advance(countdown.Interval)
	h.trigger()

	s := h.w.Surface()
	if s.Phase != "countdown" || s.Countdown != 2 {
		t.Errorf("surface = %+v, want countdown at 2", s)
	}
	if h.rec.clicks != 1 {
		t.Errorf("clicks = %d, want 1", h.rec.clicks)
	}
	h.clock.Advance(3 * countdown.Interval)
	if h.rec.photoCount() != 1 {
		t.Errorf("photos = %d, want 1", h.rec.photoCount())
	}
}

func TestWidget_ZeroCountdownCapturesImmediately(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.CountdownStart = 0 }), nil)
	h.trigger()

	if h.rec.photoCount() != 1 {
		t.Fatalf("photos = %d, want 1", h.rec.photoCount())
	}
	for _, s := range h.rec.surfaces {
		if s.CountdownVisible {
			t.Errorf("countdown was shown: %+v", s)
		}
	}
	if !h.w.Surface().FlashVisible {
		t.Error("flash should be visible")
	}
}

func TestWidget_RecaptureResetsFlash(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.CountdownStart = 0 }), nil)

	h.trigger() // capture at t=0
	h.clock.Advance(300 * time.Millisecond)
	h.trigger() // discard
	h.trigger() // capture at t=300ms

	h.clock.Advance(300 * time.Millisecond)
	if !h.w.Surface().FlashVisible {
		t.Fatal("flash cleared by the first capture's timer")
	}
	h.clock.Advance(FlashDuration - 300*time.Millisecond)
	if h.w.Surface().FlashVisible {
		t.Error("flash still visible after the flash duration")
	}
	if h.rec.photoCount() != 2 {
		t.Errorf("photos = %d, want 2", h.rec.photoCount())
	}
}

func TestWidget_UnrelatedChangeDoesNotRestart(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Settings)
	}{
		{"compression", func(s *Settings) { s.Compression = 0.5 }},
		{"image_type", func(s *Settings) { s.ImageType = camera.PNG }},
		{"size_factor", func(s *Settings) { s.SizeFactor = 0.5 }},
		{"mirror", func(s *Settings) { s.Mirror = false }},
		{"silent", func(s *Settings) { s.SilentMode = true }},
		{"fullscreen", func(s *Settings) { s.Fullscreen = true }},
		{"countdown", func(s *Settings) { s.CountdownStart = 5 }},
		{"display_error", func(s *Settings) { s.DisplayStartError = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, DefaultSettings(), nil)
			h.configure(settingsWith(tc.mod))

			if got := h.cam.Calls(); len(got) != 1 {
				t.Errorf("calls = %v, want only the mount start", got)
			}
			if h.w.Settings() != settingsWith(tc.mod) {
				t.Errorf("settings not applied: %+v", h.w.Settings())
			}
		})
	}
}

func TestWidget_StreamChangeRestartsOnce(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Settings)
		want string
	}{
		{"facing_mode", func(s *Settings) { s.FacingMode = FacingEnvironment }, "start-ideal environment 640x480"},
		{"resolution", func(s *Settings) { s.IdealResolution = geometry.Size{Width: 1280, Height: 720} }, "start-ideal user 1280x720"},
		{"max_resolution", func(s *Settings) { s.MaxResolution = true }, "start-max user"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, DefaultSettings(), nil)
			h.configure(settingsWith(tc.mod))

			got := h.cam.Calls()
			want := []string{"start-ideal user 640x480", "stop", tc.want}
			if strings.Join(got, "|") != strings.Join(want, "|") {
				t.Errorf("calls = %v, want %v", got, want)
			}
			if h.rec.stops != 1 || len(h.rec.starts) != 2 {
				t.Errorf("stops=%d starts=%d, want 1 and 2", h.rec.stops, len(h.rec.starts))
			}
			if h.w.Surface().Session != "active" {
				t.Errorf("session = %s after restart", h.w.Surface().Session)
			}
		})
	}
}

func TestWidget_RestartIgnoresStopFailure(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	busy := errors.New("device busy")
	h.cam.FailStop(busy)

	h.configure(settingsWith(func(s *Settings) { s.FacingMode = FacingEnvironment }))

	got := h.cam.Calls()
	if len(got) != 3 || got[1] != "stop" || got[2] != "start-ideal environment 640x480" {
		t.Errorf("calls = %v, want stop then start", got)
	}
	errs := h.rec.errList()
	if len(errs) == 0 || !errors.Is(errs[0], busy) {
		t.Errorf("OnCameraError = %v, want the stop failure first", errs)
	}
	// mock still holds the old stream, so the new start fails and the old
	// session stays in charge
	if s := h.w.Surface(); s.Session != "active" || s.ErrorMessage != camera.ErrAlreadyStarted.Error() {
		t.Errorf("surface = %+v", s)
	}
	if !h.cam.Running() {
		t.Error("old stream should still be running")
	}

	// the next stream change stops the old stream first
	h.cam.FailStop(nil)
	h.configure(DefaultSettings())
	want := []string{"start-ideal user 640x480", "stop", "start-ideal environment 640x480", "stop", "start-ideal user 640x480"}
	if got := h.cam.Calls(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if s := h.w.Surface(); s.Session != "active" || s.ErrorMessage != "" {
		t.Errorf("surface after retry = %+v", s)
	}
}

func TestWidget_CloseAfterFailedRestartStopsCamera(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	h.cam.FailStop(errors.New("device busy"))
	h.configure(settingsWith(func(s *Settings) { s.FacingMode = FacingEnvironment }))
	h.cam.FailStop(nil)

	h.w.Close()

	if h.cam.Running() {
		t.Errorf("camera stream still running after Close, calls = %v", h.cam.Calls())
	}
	if h.rec.stops != 1 {
		t.Errorf("OnCameraStop calls = %d, want 1", h.rec.stops)
	}
}

func TestWidget_PermissionDenied(t *testing.T) {
	h := newHarness(t, DefaultSettings(), func(m *camera.Mock) {
		m.FailStart(camera.ErrPermissionDenied)
	})

	s := h.w.Surface()
	if s.ErrorMessage != "permission denied" {
		t.Errorf("error banner = %q, want %q", s.ErrorMessage, "permission denied")
	}
	if s.Session != "stopped" {
		t.Errorf("session = %s, want stopped", s.Session)
	}
	errs := h.rec.errList()
	if len(errs) != 1 || !errors.Is(errs[0], camera.ErrPermissionDenied) {
		t.Errorf("OnCameraError = %v, want one permission error", errs)
	}
}

func TestWidget_ErrorBannerHiddenWhenDisabled(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.DisplayStartError = false }), func(m *camera.Mock) {
		m.FailStart(camera.ErrPermissionDenied)
	})

	if msg := h.w.Surface().ErrorMessage; msg != "" {
		t.Errorf("error banner = %q, want none", msg)
	}
	if len(h.rec.errList()) != 1 {
		t.Errorf("OnCameraError should still be called")
	}
}

func TestWidget_SuccessfulStartClearsError(t *testing.T) {
	h := newHarness(t, DefaultSettings(), func(m *camera.Mock) {
		m.FailStart(camera.ErrPermissionDenied)
	})
	h.cam.FailStart(nil)
	h.configure(settingsWith(func(s *Settings) { s.FacingMode = FacingEnvironment }))

	s := h.w.Surface()
	if s.ErrorMessage != "" || s.Session != "active" {
		t.Errorf("surface = %+v, want active without error", s)
	}
	// a failed session is not stopped before the new start
	if got := h.cam.Calls(); len(got) != 2 || got[1] != "start-ideal environment 640x480" {
		t.Errorf("calls = %v", got)
	}
}

func TestWidget_CaptureWithoutSession(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.CountdownStart = 0 }), func(m *camera.Mock) {
		m.FailStart(errors.New("no device"))
	})
	h.trigger()

	if h.rec.photoCount() != 0 {
		t.Error("photo taken without a session")
	}
	errs := h.rec.errList()
	if len(errs) != 2 || !errors.Is(errs[1], ErrNoSession) {
		t.Errorf("errors = %v, want start failure then ErrNoSession", errs)
	}
	s := h.w.Surface()
	if s.Phase != "live" || s.ErrorMessage != "camera not started" {
		t.Errorf("surface = %+v", s)
	}
}

func TestWidget_StillFailure(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.CountdownStart = 0 }), nil)
	boom := errors.New("sensor glitch")
	h.cam.FailStill(boom)
	h.trigger()

	if h.rec.photoCount() != 0 {
		t.Error("photo callback called on failure")
	}
	if errs := h.rec.errList(); len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Errorf("errors = %v", errs)
	}
	if s := h.w.Surface(); s.Phase != "live" || s.FlashVisible {
		t.Errorf("surface = %+v", s)
	}
}

func TestWidget_StillUsesSettings(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) {
		s.CountdownStart = 0
		s.ImageType = camera.PNG
		s.SizeFactor = 0.5
	}), nil)
	h.trigger()

	if h.rec.photoCount() != 1 || !strings.HasPrefix(h.rec.photos[0], "data:image/png;base64,") {
		t.Errorf("photos = %.40v", h.rec.photos)
	}
}

func TestWidget_CloseCancelsTimers(t *testing.T) {
	t.Run("countdown", func(t *testing.T) {
		h := newHarness(t, DefaultSettings(), nil)
		h.trigger()
		h.clock.Advance(countdown.Interval)
		before := h.w.Surface()

		h.w.Close()
		h.clock.Advance(10 * time.Second)

		if h.rec.photoCount() != 0 {
			t.Error("photo taken after Close")
		}
		if h.w.Surface() != before {
			t.Errorf("surface mutated after Close: %+v", h.w.Surface())
		}
		if h.clock.Pending() != 0 {
			t.Errorf("pending timers after Close = %d", h.clock.Pending())
		}
	})

	t.Run("flash", func(t *testing.T) {
		h := newHarness(t, settingsWith(func(s *Settings) { s.CountdownStart = 0 }), nil)
		h.trigger()
		h.w.Close()
		h.clock.Advance(time.Second)

		if !h.w.Surface().FlashVisible {
			t.Error("flash timer ran after Close")
		}
	})
}

func TestWidget_CloseStopsSession(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	h.w.Close()

	if h.cam.Running() {
		t.Error("camera still running after Close")
	}
	if h.rec.stops != 1 {
		t.Errorf("OnCameraStop calls = %d, want 1", h.rec.stops)
	}
	// state is not updated during unmount
	if got := h.w.Surface().Session; got != "active" {
		t.Errorf("session = %s, want unchanged", got)
	}

	if err := h.w.Trigger(); !errors.Is(err, ErrClosed) {
		t.Errorf("Trigger after Close = %v, want ErrClosed", err)
	}
	if err := h.w.Configure(DefaultSettings()); !errors.Is(err, ErrClosed) {
		t.Errorf("Configure after Close = %v, want ErrClosed", err)
	}
	h.w.Close()
}

func TestWidget_CloseSwallowsStopFailure(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	h.cam.FailStop(errors.New("stuck"))
	h.w.Close()

	if len(h.rec.errList()) != 1 {
		t.Errorf("errors = %v, want the stop failure reported", h.rec.errList())
	}
}

// gatedAdapter blocks starts until the gate is closed.
type gatedAdapter struct {
	*camera.Mock
	gate chan struct{}
}

func (g *gatedAdapter) StartIdeal(_ context.Context, facingMode string, ideal geometry.Size) (*camera.Stream, error) {
	<-g.gate
	return g.Mock.StartIdeal(context.Background(), facingMode, ideal)
}

func TestWidget_ChangesDuringStartAreCoalesced(t *testing.T) {
	g := &gatedAdapter{Mock: camera.NewMock(), gate: make(chan struct{})}
	rec := &recorder{}
	w, err := New(g, DefaultSettings(), rec.callbacks(), Options{Clock: clock.NewFake(time.Unix(0, 0))})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Configure(settingsWith(func(s *Settings) { s.FacingMode = FacingEnvironment })); err != nil {
		t.Fatal(err)
	}
	if err := w.Configure(settingsWith(func(s *Settings) {
		s.FacingMode = FacingEnvironment
		s.IdealResolution = geometry.Size{Width: 1280, Height: 720}
	})); err != nil {
		t.Fatal(err)
	}
	if s := w.Surface(); s.Session != "starting" {
		t.Errorf("session = %s, want starting", s.Session)
	}

	close(g.gate)
	w.WaitIdle()

	want := []string{"start-ideal user 640x480", "stop", "start-ideal environment 1280x720"}
	if got := g.Calls(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestWidget_CloseDuringStartReleasesCamera(t *testing.T) {
	g := &gatedAdapter{Mock: camera.NewMock(), gate: make(chan struct{})}
	w, err := New(g, DefaultSettings(), (&recorder{}).callbacks(), Options{Clock: clock.NewFake(time.Unix(0, 0))})
	if err != nil {
		t.Fatal(err)
	}

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()
	close(g.gate)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	if g.Running() {
		t.Error("stream started during Close was not stopped")
	}
}

func TestWidget_SurfaceInvariants(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	h.trigger()
	h.clock.Advance(4 * countdown.Interval)
	h.clock.Advance(FlashDuration)
	h.trigger()

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if len(h.rec.surfaces) == 0 {
		t.Fatal("no surface changes recorded")
	}
	for i, s := range h.rec.surfaces {
		if s.CountdownVisible && s.Trigger != TriggerHidden {
			t.Errorf("surface %d shows trigger and countdown: %+v", i, s)
		}
		if s.VideoVisible && s.ImageVisible {
			t.Errorf("surface %d shows video and image: %+v", i, s)
		}
		if s.FlashVisible && !s.ImageVisible {
			t.Errorf("surface %d flashes without an image: %+v", i, s)
		}
	}
}

func TestWidget_PreviewFrame(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	img, err := h.w.PreviewFrame()
	if err != nil {
		t.Fatalf("PreviewFrame: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 480 {
		t.Errorf("frame bounds = %v", b)
	}

	h2 := newHarness(t, DefaultSettings(), func(m *camera.Mock) { m.FailStart(errors.New("nope")) })
	if _, err := h2.w.PreviewFrame(); !errors.Is(err, ErrNoSession) {
		t.Errorf("PreviewFrame without session = %v, want ErrNoSession", err)
	}
}

func TestWidget_PreviewFrameHiddenDuringReview(t *testing.T) {
	h := newHarness(t, settingsWith(func(s *Settings) { s.CountdownStart = 1 }), nil)

	h.trigger()
	if _, err := h.w.PreviewFrame(); err != nil {
		t.Errorf("PreviewFrame during countdown = %v, want a frame", err)
	}

	h.clock.Advance(2 * countdown.Interval)
	for _, phase := range []string{"flashing", "reviewing"} {
		if got := h.w.Surface().Phase; got != phase {
			t.Fatalf("phase = %s, want %s", got, phase)
		}
		if _, err := h.w.PreviewFrame(); !errors.Is(err, ErrFeedHidden) {
			t.Errorf("PreviewFrame while %s = %v, want ErrFeedHidden", phase, err)
		}
		h.clock.Advance(FlashDuration)
	}

	h.trigger() // discard
	if _, err := h.w.PreviewFrame(); err != nil {
		t.Errorf("PreviewFrame after discard = %v", err)
	}
}

func TestWidget_UpdateMergesOnTheLoop(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	edits := []func(*Settings) error{
		func(s *Settings) error { s.CountdownStart = 5; return nil },
		func(s *Settings) error { s.SilentMode = true; return nil },
		func(s *Settings) error { s.Compression = 0.5; return nil },
		func(s *Settings) error { s.Fullscreen = true; return nil },
	}
	var wg sync.WaitGroup
	for _, edit := range edits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.w.Update(edit); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	got := h.w.Settings()
	if got.CountdownStart != 5 || !got.SilentMode || got.Compression != 0.5 || !got.Fullscreen {
		t.Errorf("settings = %+v, want every edit applied", got)
	}
}

func TestWidget_UpdateRejected(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	edited := errors.New("bad body")

	cases := []struct {
		name string
		fn   func(*Settings) error
		want error
	}{
		{"edit_error", func(s *Settings) error { s.SilentMode = true; return edited }, edited},
		{"invalid", func(s *Settings) error { s.FacingMode = "left"; return nil }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.w.Update(tc.fn)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
			if h.w.Settings() != DefaultSettings() {
				t.Errorf("settings changed: %+v", h.w.Settings())
			}
		})
	}

	h.w.Close()
	if _, err := h.w.Update(func(*Settings) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Update after Close = %v, want ErrClosed", err)
	}
}

func TestWidget_WaitIdleBlocksUntilSessionSettles(t *testing.T) {
	g := &gatedAdapter{Mock: camera.NewMock(), gate: make(chan struct{})}
	w, err := New(g, DefaultSettings(), (&recorder{}).callbacks(), Options{Clock: clock.NewFake(time.Unix(0, 0))})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	idle := make(chan struct{})
	go func() {
		w.WaitIdle()
		close(idle)
	}()
	// restarts requested while the waiter is parked
	for _, mode := range []string{FacingEnvironment, FacingUser, FacingEnvironment} {
		if err := w.Configure(settingsWith(func(s *Settings) { s.FacingMode = mode })); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-idle:
		t.Fatal("WaitIdle returned while the camera was starting")
	case <-time.After(50 * time.Millisecond):
	}

	close(g.gate)
	select {
	case <-idle:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitIdle did not return")
	}
	if s := w.Surface(); s.Session != "active" {
		t.Errorf("session = %s after WaitIdle, want active", s.Session)
	}
	want := []string{"start-ideal user 640x480", "stop", "start-ideal environment 640x480"}
	if got := g.Calls(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestWidget_WaitIdleAfterClose(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)
	h.w.Close()

	done := make(chan struct{})
	go func() {
		h.w.WaitIdle()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitIdle blocked after Close")
	}
}
