package mcp

import "github.com/1broseidon/vidout/internal/display"

// EmptyInput is the input for tools that take no arguments.
type EmptyInput struct{}

// StatusOutput is the output for display_status and set_mode.
type StatusOutput struct {
	State      string  `json:"state"`
	Mode       string  `json:"mode"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Interlaced bool    `json:"interlaced"`
	RefreshHz  float64 `json:"refresh_hz"`
	Frames     uint64  `json:"frames"`
	Suspended  bool    `json:"suspended"`
	Backend    string  `json:"backend"`
	AudioSink  string  `json:"audio_sink,omitempty"`
	Uptime     int64   `json:"uptime_seconds"`
}

// ModeInfo describes one output mode.
type ModeInfo struct {
	Mode         string  `json:"mode"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Screen       int     `json:"screen"`
	ScreenWidth  int     `json:"screen_width"`
	ScreenHeight int     `json:"screen_height"`
	Interlaced   bool    `json:"interlaced"`
	RefreshHz    float64 `json:"refresh_hz"`
	Active       bool    `json:"active"`
}

// ListModesOutput is the output for list_modes and update_resolutions.
type ListModesOutput struct {
	Modes   []ModeInfo `json:"modes"`
	Current string     `json:"current"`
}

// SetModeInput is the input for the set_mode tool.
type SetModeInput struct {
	Mode string `json:"mode" jsonschema:"required,Mode as WIDTHxHEIGHT[i][@RATE], e.g. 1920x1080@60 or 1280x720"`
}

// AckOutput is the output for suspend_display and resume_display.
type AckOutput struct {
	OK        bool `json:"ok"`
	Suspended bool `json:"suspended"`
}

func modeInfo(m, current display.Mode) ModeInfo {
	return ModeInfo{
		Mode:         m.String(),
		Width:        m.Width,
		Height:       m.Height,
		Screen:       m.Screen,
		ScreenWidth:  m.ScreenWidth,
		ScreenHeight: m.ScreenHeight,
		Interlaced:   m.Interlaced,
		RefreshHz:    m.RefreshRate,
		Active:       m.Equal(current),
	}
}
