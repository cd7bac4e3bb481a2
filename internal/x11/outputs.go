package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/vidout/internal/display"
)

// Output is a connected RandR output.
type Output struct {
	// Index is the output's position among connected outputs. It becomes
	// display.Mode.Screen.
	Index int
	ID    randr.Output
	Name  string
	Crtc  randr.Crtc
	Modes []OutputMode
}

// OutputMode pairs a display mode with the RandR id that selects it.
type OutputMode struct {
	ID   randr.Mode
	Mode display.Mode
}

// Resources is one snapshot of the RandR screen resources.
type Resources struct {
	ConfigTimestamp xproto.Timestamp
	Outputs         []Output
}

// GetResources retrieves every connected output and its modes using XRandR.
func (c *Connection) GetResources() (*Resources, error) {
	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	infos := make(map[uint32]randr.ModeInfo, len(resources.Modes))
	for _, mi := range resources.Modes {
		infos[mi.Id] = mi
	}

	res := &Resources{ConfigTimestamp: resources.ConfigTimestamp}
	for _, id := range resources.Outputs {
		info, err := randr.GetOutputInfo(c.XUtil.Conn(), id, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		if info.Connection != randr.ConnectionConnected {
			continue
		}

		out := Output{
			Index: len(res.Outputs),
			ID:    id,
			Name:  string(info.Name),
			Crtc:  info.Crtc,
		}
		for _, mid := range info.Modes {
			mi, ok := infos[uint32(mid)]
			if !ok {
				continue
			}
			out.Modes = append(out.Modes, OutputMode{ID: mid, Mode: modeFromInfo(mi, out.Index)})
		}
		res.Outputs = append(res.Outputs, out)
	}

	return res, nil
}

// Lookup returns the RandR id and output for m.
func (r *Resources) Lookup(m display.Mode) (Output, randr.Mode, bool) {
	for _, out := range r.Outputs {
		if out.Index != m.Screen {
			continue
		}
		for _, om := range out.Modes {
			if om.Mode.Equal(m) {
				return out, om.ID, true
			}
		}
	}
	return Output{}, 0, false
}

// Active returns the first output driven by a CRTC, falling back to the
// first connected output.
func (r *Resources) Active() (Output, bool) {
	for _, out := range r.Outputs {
		if out.Crtc != 0 {
			return out, true
		}
	}
	if len(r.Outputs) > 0 {
		return r.Outputs[0], true
	}
	return Output{}, false
}

// Committed returns the output carrying committed, the mode last set on
// the device. Before any mode is set it falls back to Active.
func (r *Resources) Committed(committed display.Mode) (Output, bool) {
	if !committed.IsZero() {
		for _, out := range r.Outputs {
			if out.Index == committed.Screen {
				return out, true
			}
		}
	}
	return r.Active()
}

func modeFromInfo(mi randr.ModeInfo, screen int) display.Mode {
	m := display.Mode{
		Width:        int(mi.Width),
		Height:       int(mi.Height),
		Screen:       screen,
		ScreenWidth:  int(mi.Width),
		ScreenHeight: int(mi.Height),
		Interlaced:   mi.ModeFlags&randr.ModeFlagInterlace != 0,
		RefreshRate:  refreshRate(mi),
	}
	return m
}

// refreshRate is the field rate: interlaced modes scan two fields per frame.
func refreshRate(mi randr.ModeInfo) float64 {
	if mi.Htotal == 0 || mi.Vtotal == 0 {
		return 0
	}
	rate := float64(mi.DotClock) / (float64(mi.Htotal) * float64(mi.Vtotal))
	if mi.ModeFlags&randr.ModeFlagInterlace != 0 {
		rate *= 2
	}
	return rate
}
