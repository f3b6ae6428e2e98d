// Package capture is the booth's capture widget: it owns the camera session
// lifecycle and the capture state machine (live feed, countdown, flash,
// review) and renders the result as a Surface.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/SnapGo/internal/clock"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/logic/countdown"
)

// FlashDuration is how long the flash overlay stays up after a capture.
const FlashDuration = 500 * time.Millisecond

const defaultStopTimeout = 5 * time.Second

var (
	// ErrNoSession is reported when a capture is attempted without an
	// active camera session.
	ErrNoSession = errors.New("camera not started")

	// ErrClosed is returned by operations on a closed widget.
	ErrClosed = errors.New("capture widget closed")

	// ErrFeedHidden is returned by PreviewFrame while the captured still is
	// shown instead of the live feed.
	ErrFeedHidden = errors.New("live feed hidden")
)

// Callbacks are the host hooks. Only OnTakePhoto is required.
// They run on the widget's event loop and must not call back into the
// widget synchronously, except Surface.
type Callbacks struct {
	OnTakePhoto       func(dataURI string)
	OnCameraStart     func(stream *camera.Stream)
	OnCameraStop      func()
	OnCameraError     func(err error)
	OnBeforeTakePhoto func()
	OnChange          func(s Surface)
}

// Shutter plays the shutter sound.
type Shutter interface {
	Click()
}

// Options tune a widget. Zero values select defaults.
type Options struct {
	Clock       clock.Clock // default clock.Real()
	Shutter     Shutter     // optional
	StopTimeout time.Duration
}

// Photo is the still under review.
type Photo struct {
	ID      string    `json:"id"`
	DataURI string    `json:"data_uri"`
	TakenAt time.Time `json:"taken_at"`
}

type event struct {
	fn  func()
	ran chan struct{}
}

// Widget is the capture state machine. All state is owned by one event-loop
// goroutine; public methods, timer callbacks and camera completions are
// serialized onto it.
type Widget struct {
	adapter     camera.Adapter
	cb          Callbacks
	clock       clock.Clock
	shutter     Shutter
	stopTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	events    chan event
	done      chan struct{}
	closeOnce sync.Once
	pending   sync.WaitGroup // in-flight camera starts and stops

	// loop-owned
	settings      Settings
	phase         Phase
	session       SessionState
	stream        *camera.Stream
	errMsg        string
	photo         *Photo
	tick          int
	countdown     *countdown.Countdown
	flashTimer    clock.Timer
	flashGen      int
	restartQueued bool
	inflight      int             // camera starts and stops not yet applied
	idle          []chan struct{} // WaitIdle callers
	closed        bool

	mu           sync.Mutex
	surface      Surface
	settingsCopy Settings
}

// New mounts a widget: it validates the settings, starts the event loop
// and requests the first camera session.
func New(adapter camera.Adapter, s Settings, cb Callbacks, opts Options) (*Widget, error) {
	if adapter == nil {
		return nil, errors.New("camera adapter is required")
	}
	if cb.OnTakePhoto == nil {
		return nil, errors.New("OnTakePhoto callback is required")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Widget{
		adapter:     adapter,
		cb:          cb,
		clock:       opts.Clock,
		shutter:     opts.Shutter,
		stopTimeout: opts.StopTimeout,
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan event),
		done:        make(chan struct{}),
		settings:    s,
	}
	w.surface = w.render()
	w.settingsCopy = s
	go w.run()

	w.dispatch(w.startSession)
	return w, nil
}

func (w *Widget) run() {
	for {
		select {
		case e := <-w.events:
			e.fn()
			w.publish()
			close(e.ran)
		case <-w.done:
			return
		}
	}
}

// dispatch runs fn on the event loop and waits for it. It returns false
// if the loop has stopped.
func (w *Widget) dispatch(fn func()) bool {
	e := event{fn: fn, ran: make(chan struct{})}
	select {
	case w.events <- e:
	case <-w.done:
		return false
	}
	<-e.ran
	return true
}

// publish refreshes the cached surface and notifies OnChange on change.
func (w *Widget) publish() {
	s := w.render()
	w.mu.Lock()
	w.settingsCopy = w.settings
	prev := w.surface
	if s == prev {
		w.mu.Unlock()
		return
	}
	w.surface = s
	w.mu.Unlock()

	if s.Phase != prev.Phase {
		debug.Transition(prev.Phase, s.Phase)
	}
	debug.PrintStruct("Surface", s)
	if w.cb.OnChange != nil {
		w.cb.OnChange(s)
	}
}

// timers returns a clock whose callbacks run on the event loop and are
// dropped once the widget is closed.
func (w *Widget) timers() clock.Clock {
	return loopClock{w}
}

type loopClock struct{ w *Widget }

func (c loopClock) Now() time.Time { return c.w.clock.Now() }

func (c loopClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	return c.w.clock.AfterFunc(d, func() {
		c.w.dispatch(func() {
			if !c.w.closed {
				f()
			}
		})
	})
}

// --- Public API ---

// Trigger presses the trigger control.
func (w *Widget) Trigger() error {
	if !w.dispatch(w.onTrigger) {
		return ErrClosed
	}
	return nil
}

// Configure replaces the settings. The camera restarts only when the
// facing mode, the ideal resolution or the max-resolution flag changed.
func (w *Widget) Configure(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := w.Update(func(cur *Settings) error {
		*cur = s
		return nil
	})
	return err
}

// Update edits a copy of the current settings with fn on the event loop and
// applies it if it validates. Concurrent updates apply one after the other.
// fn must not call the widget.
func (w *Widget) Update(fn func(s *Settings) error) (Settings, error) {
	var (
		next Settings
		err  error
	)
	ok := w.dispatch(func() {
		if w.closed {
			err = ErrClosed
			return
		}
		next = w.settings
		if err = fn(&next); err != nil {
			return
		}
		if err = next.Validate(); err != nil {
			return
		}
		w.configure(next)
	})
	if !ok {
		return Settings{}, ErrClosed
	}
	if err != nil {
		return Settings{}, err
	}
	return next, nil
}

// Settings returns the current settings.
func (w *Widget) Settings() Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settingsCopy
}

// Surface returns the last rendered surface. It is safe to call from
// OnChange.
func (w *Widget) Surface() Surface {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.surface
}

// Photo returns the still under review, if any.
func (w *Widget) Photo() (Photo, bool) {
	var p *Photo
	w.dispatch(func() { p = w.photo })
	if p == nil {
		return Photo{}, false
	}
	return *p, true
}

// PreviewFrame returns the latest live feed frame. It fails with
// ErrNoSession unless the session is active, and with ErrFeedHidden while
// a captured still is under review.
func (w *Widget) PreviewFrame() (image.Image, error) {
	s := w.Surface()
	if s.Session != Active.String() {
		return nil, ErrNoSession
	}
	if !s.VideoVisible {
		return nil, ErrFeedHidden
	}
	return w.adapter.Frame()
}

// WaitIdle blocks until no camera start or stop is in flight and their
// results are visible through Surface. It returns at once after Close.
func (w *Widget) WaitIdle() {
	var idle chan struct{}
	if !w.dispatch(func() {
		idle = make(chan struct{})
		if w.inflight == 0 {
			close(idle)
			return
		}
		w.idle = append(w.idle, idle)
	}) {
		return
	}
	select {
	case <-idle:
	case <-w.done:
		return
	}
	// the event that settled the session is published before its waiters
	// can dispatch again
	w.dispatch(func() {})
}

// Close unmounts the widget: pending timers are cancelled and the camera
// session is stopped. Stop failures are logged only. No widget code runs
// after Close returns.
func (w *Widget) Close() {
	w.closeOnce.Do(func() {
		w.dispatch(w.teardown)
		w.cancel()
		close(w.done)
		w.pending.Wait()
	})
}

// --- Loop handlers ---

func (w *Widget) configure(s Settings) {
	if w.closed {
		return
	}
	prev := w.settings
	w.settings = s
	if !s.needsRestart(prev) {
		debug.Verbose("Settings updated without camera restart")
		return
	}
	debug.Info("Camera settings changed (%s %s max=%v), restarting", s.FacingMode, s.IdealResolution, s.MaxResolution)
	w.restartSession()
}

func (w *Widget) onTrigger() {
	if w.closed {
		return
	}
	switch w.phase {
	case Flashing, ReviewingImage:
		w.discard()
	case CountingDown:
		debug.Verbose("Trigger ignored during countdown")
	case LiveFeed:
		if !w.settings.SilentMode && w.shutter != nil {
			w.shutter.Click()
		}
		n := w.settings.CountdownStart
		if n == 0 {
			w.capture()
			return
		}
		w.phase = CountingDown
		w.countdown = countdown.New(w.timers())
		if err := w.countdown.Start(n, w.onTick, w.onCountdownEnd); err != nil {
			debug.Error(fmt.Errorf("start countdown: %w", err))
			w.countdown = nil
			w.phase = LiveFeed
		}
	}
}

func (w *Widget) onTick(n int) {
	w.tick = n
	debug.Tick(n)
}

func (w *Widget) onCountdownEnd() {
	w.countdown = nil
	w.capture()
}

// capture takes the still and enters review with the flash raised.
func (w *Widget) capture() {
	w.tick = 0
	if w.cb.OnBeforeTakePhoto != nil {
		w.cb.OnBeforeTakePhoto()
	}

	if w.session != Active {
		w.abandonCapture(ErrNoSession)
		return
	}
	data, err := w.adapter.Still(w.settings.stillOptions())
	if err != nil {
		w.abandonCapture(fmt.Errorf("take still: %w", err))
		return
	}

	w.photo = &Photo{ID: uuid.NewString(), DataURI: data, TakenAt: w.clock.Now()}
	debug.Photo(w.photo.ID, len(data))
	w.cb.OnTakePhoto(data)

	w.phase = Flashing
	w.scheduleFlashClear()
}

func (w *Widget) abandonCapture(err error) {
	debug.Error(fmt.Errorf("capture abandoned: %w", err))
	w.errMsg = err.Error()
	w.notifyError(err)
	w.phase = LiveFeed
}

func (w *Widget) scheduleFlashClear() {
	w.stopFlashTimer()
	w.flashGen++
	gen := w.flashGen
	w.flashTimer = w.timers().AfterFunc(FlashDuration, func() {
		if gen != w.flashGen {
			return
		}
		w.flashTimer = nil
		if w.phase == Flashing {
			w.phase = ReviewingImage
		}
	})
}

func (w *Widget) stopFlashTimer() {
	if w.flashTimer != nil {
		w.flashTimer.Stop()
		w.flashTimer = nil
	}
	// invalidates a callback already queued on the loop
	w.flashGen++
}

// discard drops the reviewed still and returns to the live feed.
func (w *Widget) discard() {
	w.photo = nil
	w.stopFlashTimer()
	w.phase = LiveFeed
}

func (w *Widget) notifyError(err error) {
	if w.cb.OnCameraError != nil {
		w.cb.OnCameraError(err)
	}
}

// --- Camera session ---

// startSession requests a stream for the current settings. The result is
// applied on the loop once the adapter returns.
func (w *Widget) startSession() {
	if w.closed {
		return
	}
	s := w.settings
	w.session = Starting
	w.begin()
	go func() {
		stream, err := w.openStream(s)
		if !w.dispatch(func() {
			defer w.pending.Done()
			w.onStarted(stream, err)
			w.settle()
		}) {
			defer w.pending.Done()
			if err == nil {
				w.releaseOrphan()
			}
		}
	}()
}

func (w *Widget) openStream(s Settings) (*camera.Stream, error) {
	if s.MaxResolution {
		debug.Live("Starting camera (%s, max resolution)", s.FacingMode)
		return w.adapter.StartMax(w.ctx, s.FacingMode)
	}
	debug.Live("Starting camera (%s, ideal %s)", s.FacingMode, s.IdealResolution)
	return w.adapter.StartIdeal(w.ctx, s.FacingMode, s.IdealResolution)
}

func (w *Widget) onStarted(stream *camera.Stream, err error) {
	if w.closed {
		if err == nil {
			w.releaseOrphan()
		}
		return
	}
	if err != nil {
		// a stream whose stop failed is still held by the adapter
		if w.stream != nil {
			w.session = Active
		} else {
			w.session = Stopped
		}
		w.errMsg = err.Error()
		debug.Error(fmt.Errorf("start camera: %w", err))
		w.notifyError(err)
	} else {
		w.session = Active
		w.stream = stream
		w.errMsg = ""
		debug.Info("Camera started: %s %s on %s", stream.Size, stream.Format, stream.Device)
		if w.cb.OnCameraStart != nil {
			w.cb.OnCameraStart(stream)
		}
	}

	if w.restartQueued {
		w.restartQueued = false
		w.restartSession()
	}
}

// releaseOrphan stops a stream that came up after the widget was closed.
func (w *Widget) releaseOrphan() {
	ctx, cancel := context.WithTimeout(context.Background(), w.stopTimeout)
	defer cancel()
	if err := w.adapter.Stop(ctx); err != nil {
		debug.Error(fmt.Errorf("stop camera after close: %w", err))
	}
}

// stopSession tears the stream down; then runs on the loop with the
// adapter result.
func (w *Widget) stopSession(then func(err error)) {
	w.session = Stopping
	w.begin()
	go func() {
		err := w.adapter.Stop(w.ctx)
		if !w.dispatch(func() {
			defer w.pending.Done()
			w.onStopped(err, then)
			w.settle()
		}) {
			w.pending.Done()
		}
	}()
}

func (w *Widget) onStopped(err error, then func(error)) {
	if w.closed {
		return
	}
	if err != nil {
		// the old stream may still be up
		w.session = Active
		w.notifyError(err)
	} else {
		w.session = Stopped
		w.stream = nil
		debug.Info("Camera stopped")
		if w.cb.OnCameraStop != nil {
			w.cb.OnCameraStop()
		}
	}
	if then != nil {
		then(err)
	}
}

// begin records a camera start or stop handed to the adapter.
func (w *Widget) begin() {
	w.inflight++
	w.pending.Add(1)
}

// settle records an applied start or stop result and releases WaitIdle
// callers once nothing is in flight.
func (w *Widget) settle() {
	w.inflight--
	if w.inflight > 0 {
		return
	}
	for _, c := range w.idle {
		close(c)
	}
	w.idle = nil
}

// restartSession stops the running session and starts one with the
// current settings. Requests arriving while a start or stop is in flight
// are coalesced into one restart.
func (w *Widget) restartSession() {
	switch w.session {
	case Starting, Stopping:
		w.restartQueued = true
	case Active:
		w.stopSession(func(err error) {
			if err != nil {
				debug.Error(fmt.Errorf("restart camera: stop failed, starting anyway: %w", err))
			}
			w.restartQueued = false
			w.startSession()
		})
	default:
		w.startSession()
	}
}

// teardown runs on the loop during Close.
func (w *Widget) teardown() {
	if w.countdown != nil {
		w.countdown.Stop()
		w.countdown = nil
	}
	w.stopFlashTimer()
	w.closed = true

	// a restart after a failed stop still holds the old stream
	held := w.session == Active || (w.session == Starting && w.stream != nil)
	if !held {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.stopTimeout)
	defer cancel()
	if err := w.adapter.Stop(ctx); err != nil {
		w.notifyError(err)
		debug.Error(fmt.Errorf("stop camera on close: %w", err))
		return
	}
	debug.Info("Camera stopped")
	if w.cb.OnCameraStop != nil {
		w.cb.OnCameraStop()
	}
}
