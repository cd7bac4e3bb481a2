// Package resolution keeps the resolutions published by the display
// manager together with their per-mode calibration (overscan, subtitle
// position and pixel ratio).
package resolution

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/vidout/internal/display"
)

// Overscan is the visible rectangle inside the mode, in pixels.
type Overscan struct {
	Left   int `yaml:"left" json:"left"`
	Top    int `yaml:"top" json:"top"`
	Right  int `yaml:"right" json:"right"`
	Bottom int `yaml:"bottom" json:"bottom"`
}

// Info is one published resolution.
type Info struct {
	Mode       display.Mode `json:"mode"`
	Overscan   Overscan     `json:"overscan"`
	Subtitles  int          `json:"subtitles"`
	PixelRatio float64      `json:"pixel_ratio"`
	Calibrated bool         `json:"calibrated"`
}

// Calibration is a user adjustment for one mode, keyed by Mode.String().
type Calibration struct {
	Mode       string   `yaml:"mode"`
	Overscan   Overscan `yaml:"overscan"`
	Subtitles  int      `yaml:"subtitles"`
	PixelRatio float64  `yaml:"pixel_ratio,omitempty"`
}

type calibrationFile struct {
	Calibrations []Calibration `yaml:"calibrations"`
}

// Registry implements display.ResolutionRegistry and display.Overscan.
// It is safe for concurrent use: the render goroutine publishes while
// control requests read snapshots.
type Registry struct {
	mu           sync.RWMutex
	desktop      Info
	hasDesktop   bool
	custom       []Info
	reset        map[string]Info
	calibrations map[string]Calibration
}

var (
	_ display.ResolutionRegistry = (*Registry)(nil)
	_ display.Overscan           = (*Registry)(nil)
)

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		reset:        make(map[string]Info),
		calibrations: make(map[string]Calibration),
	}
}

// Defaults returns the uncalibrated info for m: full-frame overscan,
// subtitles near the bottom edge and square pixels.
func Defaults(m display.Mode) Info {
	info := Info{
		Mode:       m,
		Overscan:   Overscan{Right: m.Width, Bottom: m.Height},
		Subtitles:  int(0.965 * float64(m.Height)),
		PixelRatio: 1,
	}
	if m.Width > 0 && m.Height > 0 && m.ScreenWidth > 0 && m.ScreenHeight > 0 {
		// Non-square pixels when the mode is scaled onto a differently
		// shaped screen.
		info.PixelRatio = (float64(m.ScreenWidth) / float64(m.ScreenHeight)) /
			(float64(m.Width) / float64(m.Height))
	}
	return info
}

// ClearCustomResolutions drops every published mode except the desktop.
func (r *Registry) ClearCustomResolutions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = nil
}

// ResetOverscan restores the default calibration for m. The next
// AddResolution of m publishes it uncalibrated.
func (r *Registry) ResetOverscan(m display.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset[m.String()] = Defaults(m)
}

// AddResolution publishes m.
func (r *Registry) AddResolution(m display.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.reset[m.String()]
	if ok {
		delete(r.reset, m.String())
	} else {
		info = Defaults(m)
	}
	info.Mode = m
	r.custom = append(r.custom, info)
}

// UpdateDesktopResolution records the mode the desktop runs at.
func (r *Registry) UpdateDesktopResolution(screen, width, height int, refreshRate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := display.Mode{
		Width:        width,
		Height:       height,
		Screen:       screen,
		ScreenWidth:  width,
		ScreenHeight: height,
		RefreshRate:  refreshRate,
	}
	r.desktop = Defaults(m)
	r.hasDesktop = true
}

// ApplyCalibrations copies stored calibrations onto every matching
// published resolution, clamped to the mode's bounds.
func (r *Registry) ApplyCalibrations() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasDesktop {
		r.desktop = r.calibrate(r.desktop)
	}
	for i := range r.custom {
		r.custom[i] = r.calibrate(r.custom[i])
	}
}

func (r *Registry) calibrate(info Info) Info {
	c, ok := r.calibrations[info.Mode.String()]
	if !ok {
		return info
	}
	w, h := info.Mode.Width, info.Mode.Height
	info.Overscan = Overscan{
		Left:   clamp(c.Overscan.Left, -w/4, w/4),
		Top:    clamp(c.Overscan.Top, -h/4, h/4),
		Right:  clamp(c.Overscan.Right, w*3/4, w*5/4),
		Bottom: clamp(c.Overscan.Bottom, h*3/4, h*5/4),
	}
	info.Subtitles = clamp(c.Subtitles, 0, h*5/4)
	if c.PixelRatio > 0 {
		info.PixelRatio = c.PixelRatio
	}
	info.Calibrated = true
	return info
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// SetCalibration stores c, replacing any calibration for the same mode.
// It takes effect on the next ApplyCalibrations.
func (r *Registry) SetCalibration(c Calibration) {
	if m, err := display.ParseMode(c.Mode); err == nil {
		c.Mode = m.String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calibrations[c.Mode] = c
}

// Calibrations returns the stored calibrations sorted by mode.
func (r *Registry) Calibrations() []Calibration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Calibration, 0, len(r.calibrations))
	for _, c := range r.calibrations {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Calibration) int {
		switch {
		case a.Mode < b.Mode:
			return -1
		case a.Mode > b.Mode:
			return 1
		}
		return 0
	})
	return out
}

// Desktop returns the desktop resolution, if one was recorded.
func (r *Registry) Desktop() (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.desktop, r.hasDesktop
}

// Resolutions returns a copy of the published resolutions in hardware
// order.
func (r *Registry) Resolutions() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.custom)
}

// LoadCalibrations reads calibrations from a YAML file. A missing file is
// not an error.
func (r *Registry) LoadCalibrations(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read calibrations: %w", err)
	}

	var f calibrationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse calibrations %s: %w", path, err)
	}
	for _, c := range f.Calibrations {
		if _, err := display.ParseMode(c.Mode); err != nil {
			return fmt.Errorf("calibration for %q: %w", c.Mode, err)
		}
		r.SetCalibration(c)
	}
	return nil
}

// SaveCalibrations writes the stored calibrations to path.
func (r *Registry) SaveCalibrations(path string) error {
	data, err := yaml.Marshal(calibrationFile{Calibrations: r.Calibrations()})
	if err != nil {
		return fmt.Errorf("failed to marshal calibrations: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create calibration directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write calibrations: %w", err)
	}
	return nil
}
