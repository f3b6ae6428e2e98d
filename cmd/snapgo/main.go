package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/hw/indicator"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
	"github.com/cjeanneret/SnapGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	facingMode := flag.String("facing_mode", "", "override camera facing mode (user or environment)")
	countdownStart := flag.Int("countdown", -1, "override countdown length (0-10, 0 = capture immediately)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (empty / negative values mean "use config")
	if err := validateCLIOverrides(*facingMode, *countdownStart); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	settings := settingsFromConfig(cfg)
	applyOverrides(&settings, *facingMode, *countdownStart)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Booth indicators
	debug.Step(2, "Initializing booth indicators")
	debug.PrintStruct("GPIO config", cfg.GPIO)
	var shutter capture.Shutter
	if cfg.GPIO.BuzzerPin > 0 {
		shutter = indicator.NewBuzzer(gpioDriver, cfg.GPIO.BuzzerPin, cfg.ClickDuration())
	}
	var lamp *indicator.FlashLamp
	if cfg.GPIO.FlashPin > 0 {
		lamp = indicator.NewFlashLamp(gpioDriver, cfg.GPIO.FlashPin)
	}

	// Initialize camera
	debug.Step(3, "Initializing camera")
	adapter, err := newAdapterFromConfig(cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)
	debug.PrintStruct("Capture settings", settings)

	debug.Step(4, "Mounting capture widget")
	widget, err := capture.New(adapter, settings, boothCallbacks(broadcaster, lamp), capture.Options{Shutter: shutter})
	if err != nil {
		log.Fatalf("init capture widget failed: %v", err)
	}
	defer widget.Close()

	if cfg.GPIO.TriggerPin > 0 {
		button, err := gpio.NewButton(gpioDriver, cfg.GPIO.TriggerPin, cfg.PollInterval(), cfg.DebounceDuration())
		if err != nil {
			log.Fatalf("init trigger button failed: %v", err)
		}
		go func() {
			err := button.Watch(ctx, func() {
				if err := widget.Trigger(); err != nil {
					debug.Error(err)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("trigger button: %v", err)
			}
		}()
	}

	notify(daemon.SdNotifyReady)
	defer notify(daemon.SdNotifyStopping)
	debug.Summary("SnapGo ready")

	if port := webPort.port(); port > 0 {
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, widget)
		if err != nil {
			log.Fatalf("init web server failed: %v", err)
		}
		if err := srv.Run(ctx); err != nil {
			log.Printf("web server: %v", err)
		}
		return
	}

	<-ctx.Done()
}

// boothCallbacks wires the widget to the booth outputs. broadcaster and
// lamp may be nil.
func boothCallbacks(broadcaster *web.StatusBroadcaster, lamp *indicator.FlashLamp) capture.Callbacks {
	return capture.Callbacks{
		OnTakePhoto: func(dataURI string) {
			if broadcaster != nil {
				broadcaster.BroadcastMsg(fmt.Sprintf("Photo taken (%d bytes)", len(dataURI)))
			}
		},
		OnCameraStart: func(s *camera.Stream) {
			debug.Value("Stream", fmt.Sprintf("%s %s %s", s.Device, s.Size, s.Format))
		},
		OnCameraStop: func() {
			debug.Live("Camera session closed")
		},
		OnCameraError: func(err error) {
			if broadcaster != nil {
				broadcaster.Broadcast("error", "Camera error: "+err.Error())
			}
		},
		OnChange: func(s capture.Surface) {
			if lamp != nil {
				if err := lamp.Set(s.FlashVisible); err != nil {
					debug.Error(fmt.Errorf("flash lamp: %w", err))
				}
			}
			if broadcaster != nil {
				broadcaster.PublishSurface(s)
			}
		},
	}
}

// notify reports the service state to systemd; it is a no-op outside a
// systemd unit.
func notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Printf("sd_notify %q failed: %v", state, err)
	}
}

// settingsFromConfig builds the widget settings from the YAML configuration.
func settingsFromConfig(cfg *config.Config) capture.Settings {
	s := capture.Settings{
		FacingMode:        cfg.Capture.FacingMode,
		MaxResolution:     cfg.Capture.MaxResolution,
		ImageType:         camera.ImageType(cfg.Image.Type),
		Compression:       cfg.Image.Compression,
		SizeFactor:        cfg.Image.SizeFactor,
		Mirror:            cfg.Mirror(),
		SilentMode:        cfg.Booth.SilentMode,
		Fullscreen:        cfg.Booth.Fullscreen,
		CountdownStart:    cfg.CountdownStart(),
		DisplayStartError: cfg.DisplayStartError(),
	}
	if r := cfg.Capture.IdealResolution; r != nil {
		s.IdealResolution = geometry.Size{Width: r.WidthPx, Height: r.HeightPx}
	}
	return s
}

// validateCLIOverrides checks the CLI overrides. An empty facing mode and a
// negative countdown are ignored (they mean "use config").
func validateCLIOverrides(facingMode string, countdown int) error {
	if facingMode != "" {
		if err := config.ValidateFacingMode(facingMode); err != nil {
			return err
		}
	}
	if countdown > 10 {
		return fmt.Errorf("countdown must be between 0 and 10, got %d", countdown)
	}
	return nil
}

// applyOverrides mutates s with the CLI overrides that are set.
func applyOverrides(s *capture.Settings, facingMode string, countdown int) {
	if facingMode != "" {
		s.FacingMode = facingMode
	}
	if countdown >= 0 {
		s.CountdownStart = countdown
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newAdapterFromConfig selects a camera adapter based on configuration.
func newAdapterFromConfig(cfg *config.Config) (camera.Adapter, error) {
	switch cfg.Camera.Type {
	case "v4l2":
		return camera.NewV4L2(cfg.Camera.Devices, cfg.FrameTimeout(), cfg.Camera.Buffers), nil
	case "mock":
		return camera.NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}
