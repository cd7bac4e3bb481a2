package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/vidout/internal/audiosink"
	"github.com/1broseidon/vidout/internal/display"
	"github.com/1broseidon/vidout/internal/logging"
)

// Backend selects the display hardware.
type Backend string

const (
	BackendX11     Backend = "x11"     // RandR outputs on an X server.
	BackendVirtual Backend = "virtual" // Headless, paced in software.
)

// LoggingConfig configures the daemon logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file,omitempty"` // empty = stderr
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
	JSON      bool   `yaml:"json"`
}

// VirtualConfig describes the headless backend's hardware.
type VirtualConfig struct {
	Modes      []string `yaml:"modes"`
	Current    string   `yaml:"current"`
	AckDelayMS int      `yaml:"ack_delay_ms"`
}

// Config is the effective vidout configuration.
type Config struct {
	Backend    Backend `yaml:"backend"`
	Display    string  `yaml:"display"`
	XAuthority string  `yaml:"xauthority"`
	// Mode is the output mode to switch to at startup, e.g. "1920x1080@60".
	// Empty keeps the mode the hardware is already scanning out.
	Mode       string `yaml:"mode"`
	WindowName string `yaml:"window_name"`
	// Buffers is 2 for double buffering, 3 for triple.
	Buffers      int    `yaml:"buffers"`
	AudioSink    string `yaml:"audio_sink"`
	Calibrations string `yaml:"calibrations"`
	// ReconcileSeconds is how often the committed mode is checked against
	// the hardware. 0 disables the check.
	ReconcileSeconds int           `yaml:"reconcile_seconds"`
	Logging          LoggingConfig `yaml:"logging"`
	Virtual          VirtualConfig `yaml:"virtual"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:    BackendX11,
		WindowName: "vidout",
		Buffers:    2,

		ReconcileSeconds: 10,
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
		Virtual: VirtualConfig{
			Modes: []string{
				"1920x1080@60",
				"1920x1080@50",
				"1920x1080@23.976",
				"1920x1080i@50",
				"1280x720@60",
			},
			Current:    "1920x1080@60",
			AckDelayMS: 2,
		},
	}
}

// PreferredMode parses Mode. ok is false when no mode is configured.
func (c *Config) PreferredMode() (mode display.Mode, ok bool, err error) {
	if strings.TrimSpace(c.Mode) == "" {
		return display.Mode{}, false, nil
	}
	m, err := display.ParseMode(c.Mode)
	if err != nil {
		return display.Mode{}, false, err
	}
	return m, true, nil
}

// VirtualHardware parses the virtual backend's mode list.
func (c *Config) VirtualHardware() (modes []display.Mode, current display.Mode, ackDelay time.Duration, err error) {
	for i, s := range c.Virtual.Modes {
		m, err := display.ParseMode(s)
		if err != nil {
			return nil, display.Mode{}, 0, fmt.Errorf("virtual.modes[%d]: %w", i, err)
		}
		modes = append(modes, m)
	}
	if c.Virtual.Current != "" {
		current, err = display.ParseMode(c.Virtual.Current)
		if err != nil {
			return nil, display.Mode{}, 0, fmt.Errorf("virtual.current: %w", err)
		}
		if m, ok := display.Match(modes, current); ok {
			current = m
		}
	} else if len(modes) > 0 {
		current = modes[0]
	}
	return modes, current, time.Duration(c.Virtual.AckDelayMS) * time.Millisecond, nil
}

// ReconcileInterval returns the mode check period, 0 when disabled.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileSeconds) * time.Second
}

// AudioPreference resolves the audio sink, letting AE_SINK override the
// configured value.
func (c *Config) AudioPreference() audiosink.Preference {
	return audiosink.FromEnv(c.AudioSink)
}

// GetLoggingConfig returns the logger settings with defaults applied.
func (c *Config) GetLoggingConfig() logging.Config {
	if c == nil {
		return logging.Config{Level: "info"}
	}
	cfg := c.Logging
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = 3
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	return logging.Config{
		Level:     cfg.Level,
		FilePath:  expandHome(cfg.File),
		MaxSizeMB: cfg.MaxSizeMB,
		MaxFiles:  cfg.MaxFiles,
		JSON:      cfg.JSON,
	}
}

// CalibrationsPath returns where per-mode calibrations are stored.
func (c *Config) CalibrationsPath() (string, error) {
	if c.Calibrations != "" {
		return expandHome(c.Calibrations), nil
	}
	path, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), "calibrations.yaml"), nil
}

// Save writes the configuration to the standard location.
//
// Note: this marshals the effective config and will not preserve comments or
// include structure from the original YAML.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveToPath(path)
}

// SaveToPath writes the configuration to path.
func (c *Config) SaveToPath(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendX11, BackendVirtual:
	default:
		return &ValidationError{Path: "backend", Err: fmt.Errorf("backend must be one of: x11, virtual")}
	}
	if c.Buffers != 2 && c.Buffers != 3 {
		return &ValidationError{Path: "buffers", Err: fmt.Errorf("buffers must be 2 or 3")}
	}
	if strings.TrimSpace(c.WindowName) == "" {
		return &ValidationError{Path: "window_name", Err: fmt.Errorf("window_name must not be empty")}
	}
	if _, _, err := c.PreferredMode(); err != nil {
		return &ValidationError{Path: "mode", Err: err}
	}
	switch strings.ToLower(strings.TrimSpace(c.AudioSink)) {
	case "", "auto", "alsa", "pulse":
	default:
		return &ValidationError{Path: "audio_sink", Err: fmt.Errorf("audio_sink must be one of: auto, alsa, pulse")}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return &ValidationError{Path: "logging.level", Err: fmt.Errorf("level must be one of: debug, info, notice, warning, error")}
	}
	if c.Logging.MaxSizeMB < 0 {
		return &ValidationError{Path: "logging.max_size_mb", Err: fmt.Errorf("max_size_mb must be >= 0")}
	}
	if c.Logging.MaxFiles < 0 {
		return &ValidationError{Path: "logging.max_files", Err: fmt.Errorf("max_files must be >= 0")}
	}
	if c.ReconcileSeconds < 0 {
		return &ValidationError{Path: "reconcile_seconds", Err: fmt.Errorf("reconcile_seconds must be >= 0")}
	}
	if c.Virtual.AckDelayMS < 0 {
		return &ValidationError{Path: "virtual.ack_delay_ms", Err: fmt.Errorf("ack_delay_ms must be >= 0")}
	}
	if _, _, _, err := c.VirtualHardware(); err != nil {
		return &ValidationError{Path: "virtual", Err: err}
	}
	if c.Backend == BackendVirtual && len(c.Virtual.Modes) == 0 {
		fmt.Fprintln(os.Stderr, "warning: virtual.modes is empty; the virtual backend will report no resolutions")
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
