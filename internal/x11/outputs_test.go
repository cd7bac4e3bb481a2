package x11

import (
	"math"
	"testing"

	"github.com/BurntSushi/xgb/randr"

	"github.com/1broseidon/vidout/internal/display"
)

func TestRefreshRate(t *testing.T) {
	tests := []struct {
		name string
		mi   randr.ModeInfo
		want float64
	}{
		{"1080p60", randr.ModeInfo{DotClock: 148500000, Htotal: 2200, Vtotal: 1125}, 60},
		{"1080p50", randr.ModeInfo{DotClock: 148500000, Htotal: 2640, Vtotal: 1125}, 50},
		{"1080i50", randr.ModeInfo{DotClock: 74250000, Htotal: 2640, Vtotal: 1125, ModeFlags: randr.ModeFlagInterlace}, 50},
		{"zero totals", randr.ModeInfo{DotClock: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := refreshRate(tt.mi); math.Abs(got-tt.want) > 0.001 {
				t.Fatalf("refreshRate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModeFromInfo(t *testing.T) {
	mi := randr.ModeInfo{
		Width: 1920, Height: 1080,
		DotClock: 74250000, Htotal: 2640, Vtotal: 1125,
		ModeFlags: randr.ModeFlagInterlace,
	}
	m := modeFromInfo(mi, 1)
	want := display.Mode{
		Width: 1920, Height: 1080, Screen: 1,
		ScreenWidth: 1920, ScreenHeight: 1080,
		Interlaced: true, RefreshRate: 50,
	}
	if !m.Equal(want) {
		t.Fatalf("modeFromInfo = %+v, want %+v", m, want)
	}
}

func TestResourcesLookupAndActive(t *testing.T) {
	p60 := display.Mode{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, RefreshRate: 60}
	second := display.Mode{Width: 1280, Height: 720, Screen: 1, ScreenWidth: 1280, ScreenHeight: 720, RefreshRate: 60}
	res := &Resources{Outputs: []Output{
		{Index: 0, ID: 10, Name: "HDMI-1", Modes: []OutputMode{{ID: 100, Mode: p60}}},
		{Index: 1, ID: 11, Name: "DP-1", Crtc: 5, Modes: []OutputMode{{ID: 101, Mode: second}}},
	}}

	out, id, ok := res.Lookup(p60)
	if !ok || out.Name != "HDMI-1" || id != 100 {
		t.Fatalf("Lookup(p60) = %v, %d, %v", out.Name, id, ok)
	}
	// Same timing on the wrong screen does not match.
	other := p60
	other.Screen = 1
	if _, _, ok := res.Lookup(other); ok {
		t.Fatalf("expected no match for screen 1")
	}

	active, ok := res.Active()
	if !ok || active.Name != "DP-1" {
		t.Fatalf("Active = %v, %v; want DP-1", active.Name, ok)
	}

	res.Outputs[1].Crtc = 0
	active, ok = res.Active()
	if !ok || active.Name != "HDMI-1" {
		t.Fatalf("Active fallback = %v, %v; want HDMI-1", active.Name, ok)
	}

	if _, ok := (&Resources{}).Active(); ok {
		t.Fatalf("expected no active output")
	}
}

func TestResourcesCommittedFollowsScreen(t *testing.T) {
	first := display.Mode{Width: 1920, Height: 1080, ScreenWidth: 1920, ScreenHeight: 1080, RefreshRate: 60}
	second := display.Mode{Width: 1280, Height: 720, Screen: 1, ScreenWidth: 1280, ScreenHeight: 720, RefreshRate: 60}
	res := &Resources{Outputs: []Output{
		{Index: 0, ID: 10, Name: "HDMI-1", Crtc: 4, Modes: []OutputMode{{ID: 100, Mode: first}}},
		{Index: 1, ID: 11, Name: "DP-1", Crtc: 5, Modes: []OutputMode{{ID: 101, Mode: second}}},
	}}

	tests := []struct {
		name      string
		committed display.Mode
		want      string
	}{
		{"nothing committed", display.Mode{}, "HDMI-1"},
		{"first screen", first, "HDMI-1"},
		{"second screen", second, "DP-1"},
		{"unplugged screen", display.Mode{Width: 640, Height: 480, Screen: 3, RefreshRate: 60}, "HDMI-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := res.Committed(tt.committed)
			if !ok || out.Name != tt.want {
				t.Fatalf("Committed = %v, %v; want %s", out.Name, ok, tt.want)
			}
		})
	}
}
