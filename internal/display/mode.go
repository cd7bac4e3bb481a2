package display

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Mode describes one output timing as reported by the hardware.
type Mode struct {
	Width        int     `json:"width" yaml:"width"`
	Height       int     `json:"height" yaml:"height"`
	Screen       int     `json:"screen" yaml:"screen"`
	ScreenWidth  int     `json:"screen_width" yaml:"screen_width"`
	ScreenHeight int     `json:"screen_height" yaml:"screen_height"`
	Interlaced   bool    `json:"interlaced" yaml:"interlaced"`
	RefreshRate  float64 `json:"refresh_rate" yaml:"refresh_rate"`
}

// IsZero reports whether m is the empty mode.
func (m Mode) IsZero() bool {
	return m == Mode{}
}

// Equal compares two modes, tolerating rounding noise in the refresh rate.
func (m Mode) Equal(o Mode) bool {
	return m.Width == o.Width &&
		m.Height == o.Height &&
		m.Screen == o.Screen &&
		m.ScreenWidth == o.ScreenWidth &&
		m.ScreenHeight == o.ScreenHeight &&
		m.Interlaced == o.Interlaced &&
		math.Abs(m.RefreshRate-o.RefreshRate) < 0.01
}

// SameSize reports whether both modes need equally sized buffers.
func (m Mode) SameSize(o Mode) bool {
	return m.Width == o.Width && m.Height == o.Height
}

func (m Mode) String() string {
	s := fmt.Sprintf("%dx%d", m.Width, m.Height)
	if m.Interlaced {
		s += "i"
	}
	return s + fmt.Sprintf("@%.2f", m.RefreshRate)
}

// ParseMode parses "WIDTHxHEIGHT[i][@RATE]" such as "1920x1080@60" or
// "1920x1080i@50". Screen dimensions default to the mode dimensions.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Mode{}, fmt.Errorf("empty mode")
	}

	var m Mode
	dims, rate, hasRate := strings.Cut(s, "@")
	if hasRate {
		r, err := strconv.ParseFloat(rate, 64)
		if err != nil || r <= 0 {
			return Mode{}, fmt.Errorf("invalid refresh rate %q", rate)
		}
		m.RefreshRate = r
	}

	if strings.HasSuffix(dims, "i") {
		m.Interlaced = true
		dims = strings.TrimSuffix(dims, "i")
	}

	w, h, ok := strings.Cut(dims, "x")
	if !ok {
		return Mode{}, fmt.Errorf("invalid mode %q: expected WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Mode{}, fmt.Errorf("invalid width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Mode{}, fmt.Errorf("invalid height %q", h)
	}

	m.Width = width
	m.Height = height
	m.ScreenWidth = width
	m.ScreenHeight = height
	return m, nil
}

// Match finds the catalog entry best matching want. Width, height and
// interlacing must agree; a zero refresh rate in want matches the highest
// available rate, otherwise the closest rate wins.
func Match(catalog []Mode, want Mode) (Mode, bool) {
	var (
		best  Mode
		found bool
	)
	for _, m := range catalog {
		if m.Width != want.Width || m.Height != want.Height || m.Interlaced != want.Interlaced {
			continue
		}
		if !found {
			best, found = m, true
			continue
		}
		if want.RefreshRate == 0 {
			if m.RefreshRate > best.RefreshRate {
				best = m
			}
			continue
		}
		if math.Abs(m.RefreshRate-want.RefreshRate) < math.Abs(best.RefreshRate-want.RefreshRate) {
			best = m
		}
	}
	return best, found
}
