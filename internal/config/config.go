package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file read by Load.
const MaxConfigFileBytes = 64 << 10

// Facing modes understood by the camera layer.
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

// CameraConfig selects the camera adapter and its devices.
type CameraConfig struct {
	Type            string            `yaml:"type"`              // "v4l2" or "mock"
	Devices         map[string]string `yaml:"devices"`           // facing mode -> device path, e.g. user: /dev/video0
	FrameTimeoutSec int               `yaml:"frame_timeout_sec"` // V4L2 WaitForFrame timeout (seconds)
	Buffers         int               `yaml:"buffers"`           // V4L2 mmap buffer count
}

// ResolutionConfig is a requested frame size in pixels.
type ResolutionConfig struct {
	WidthPx  int `yaml:"width_px"`
	HeightPx int `yaml:"height_px"`
}

// CaptureConfig describes the stream requested from the camera.
// Changing any of these fields restarts the camera session.
type CaptureConfig struct {
	FacingMode      string            `yaml:"facing_mode"`
	IdealResolution *ResolutionConfig `yaml:"ideal_resolution,omitempty"` // optional
	MaxResolution   bool              `yaml:"max_resolution"`             // ignore ideal_resolution, use the largest mode
}

// ImageConfig describes the still image encoding.
type ImageConfig struct {
	Type        string  `yaml:"type"`        // "jpg" or "png"
	Compression float64 `yaml:"compression"` // JPEG quality 0-1
	SizeFactor  float64 `yaml:"size_factor"` // output scale 0-1
	Mirror      *bool   `yaml:"mirror"`      // default true
}

// BoothConfig holds the capture widget behavior.
type BoothConfig struct {
	CountdownStart    *int  `yaml:"countdown_start"`     // default 3, 0 = capture immediately
	SilentMode        bool  `yaml:"silent_mode"`         // no shutter click
	Fullscreen        bool  `yaml:"fullscreen"`          // fullscreen layout hint for the web page
	DisplayStartError *bool `yaml:"display_start_error"` // default true
}

// GPIOConfig holds booth hardware pins (BCM numbering). 0 = not wired.
type GPIOConfig struct {
	TriggerPin int `yaml:"trigger_pin"` // push button to GND, internal pull-up
	FlashPin   int `yaml:"flash_pin"`   // flash lamp relay/LED, active HIGH
	BuzzerPin  int `yaml:"buzzer_pin"`  // shutter click buzzer, active HIGH
	ClickMs    int `yaml:"click_ms"`    // buzzer pulse length
	DebounceMs int `yaml:"debounce_ms"` // trigger debounce window
	PollMs     int `yaml:"poll_ms"`     // trigger polling period
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Capture  CaptureConfig  `yaml:"capture"`
	Image    ImageConfig    `yaml:"image"`
	Booth    BoothConfig    `yaml:"booth"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files located in a "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if parent := filepath.Base(filepath.Dir(abs)); parent != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory, got %s", parent)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	switch cfg.Camera.Type {
	case "":
		return errors.New("camera.type is required")
	case "v4l2", "mock":
	default:
		return fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
	if cfg.Camera.FrameTimeoutSec <= 0 {
		cfg.Camera.FrameTimeoutSec = 5
	}
	if cfg.Camera.Buffers <= 0 {
		cfg.Camera.Buffers = 4
	}

	if cfg.Capture.FacingMode == "" {
		cfg.Capture.FacingMode = FacingUser
	}
	if err := ValidateFacingMode(cfg.Capture.FacingMode); err != nil {
		return err
	}
	if cfg.Camera.Type == "v4l2" {
		if cfg.Camera.Devices[cfg.Capture.FacingMode] == "" {
			return fmt.Errorf("camera.devices has no device for facing mode %q", cfg.Capture.FacingMode)
		}
	}
	if r := cfg.Capture.IdealResolution; r != nil {
		if r.WidthPx <= 0 || r.HeightPx <= 0 {
			return fmt.Errorf("ideal_resolution must be positive, got %dx%d", r.WidthPx, r.HeightPx)
		}
	}

	switch cfg.Image.Type {
	case "":
		cfg.Image.Type = "jpg"
	case "jpg", "png":
	default:
		return fmt.Errorf("image.type must be jpg or png, got %q", cfg.Image.Type)
	}
	if cfg.Image.Compression == 0 {
		cfg.Image.Compression = 0.92
	}
	if cfg.Image.Compression < 0 || cfg.Image.Compression > 1 {
		return fmt.Errorf("image.compression must be between 0 and 1, got %.2f", cfg.Image.Compression)
	}
	if cfg.Image.SizeFactor == 0 {
		cfg.Image.SizeFactor = 1
	}
	if cfg.Image.SizeFactor < 0 || cfg.Image.SizeFactor > 1 {
		return fmt.Errorf("image.size_factor must be between 0 and 1, got %.2f", cfg.Image.SizeFactor)
	}

	if c := cfg.Booth.CountdownStart; c != nil && (*c < 0 || *c > 10) {
		return fmt.Errorf("booth.countdown_start must be between 0 and 10, got %d", *c)
	}

	// Default values for booth hardware timings
	if cfg.GPIO.ClickMs <= 0 {
		cfg.GPIO.ClickMs = 30
	}
	if cfg.GPIO.DebounceMs <= 0 {
		cfg.GPIO.DebounceMs = 50
	}
	if cfg.GPIO.PollMs <= 0 {
		cfg.GPIO.PollMs = 10
	}
	return nil
}

// ValidateFacingMode reports whether mode is a known facing mode.
func ValidateFacingMode(mode string) error {
	if mode != FacingUser && mode != FacingEnvironment {
		return fmt.Errorf("facing_mode must be %q or %q, got %q", FacingUser, FacingEnvironment, mode)
	}
	return nil
}

// Mirror returns whether stills and preview are mirrored (default true).
func (c *Config) Mirror() bool {
	if c.Image.Mirror == nil {
		return true
	}
	return *c.Image.Mirror
}

// CountdownStart returns the countdown length (default 3).
func (c *Config) CountdownStart() int {
	if c.Booth.CountdownStart == nil {
		return 3
	}
	return *c.Booth.CountdownStart
}

// DisplayStartError returns whether start errors are shown (default true).
func (c *Config) DisplayStartError() bool {
	if c.Booth.DisplayStartError == nil {
		return true
	}
	return *c.Booth.DisplayStartError
}

// FrameTimeout returns the camera frame wait timeout.
func (c *Config) FrameTimeout() time.Duration {
	return time.Duration(c.Camera.FrameTimeoutSec) * time.Second
}

// ClickDuration returns the buzzer pulse length.
func (c *Config) ClickDuration() time.Duration {
	return time.Duration(c.GPIO.ClickMs) * time.Millisecond
}

// DebounceDuration returns the trigger debounce window.
func (c *Config) DebounceDuration() time.Duration {
	return time.Duration(c.GPIO.DebounceMs) * time.Millisecond
}

// PollInterval returns the trigger polling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.GPIO.PollMs) * time.Millisecond
}
