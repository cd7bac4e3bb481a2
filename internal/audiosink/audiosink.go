// Package audiosink picks and registers the audio output backend that runs
// alongside the display.
package audiosink

import (
	"log/slog"
	"os"
	"strings"
)

// EnvVar overrides the configured sink preference.
const EnvVar = "AE_SINK"

// Preference selects which backend to register.
type Preference int

const (
	// PreferAuto tries PulseAudio and falls back to ALSA.
	PreferAuto Preference = iota
	PreferALSA
	PreferPulse
)

func (p Preference) String() string {
	switch p {
	case PreferALSA:
		return "alsa"
	case PreferPulse:
		return "pulse"
	default:
		return "auto"
	}
}

// Resolve maps a sink name to a preference. Matching is case-insensitive;
// anything other than "alsa" or "pulse" means auto.
func Resolve(name string) Preference {
	switch {
	case strings.EqualFold(strings.TrimSpace(name), "alsa"):
		return PreferALSA
	case strings.EqualFold(strings.TrimSpace(name), "pulse"):
		return PreferPulse
	default:
		return PreferAuto
	}
}

// FromEnv resolves the preference from AE_SINK when set, else from
// configured.
func FromEnv(configured string) Preference {
	if v, ok := os.LookupEnv(EnvVar); ok {
		return Resolve(v)
	}
	return Resolve(configured)
}

// Registrar registers audio backends. Each method reports whether the
// backend is usable.
type Registrar interface {
	RegisterALSA() bool
	RegisterPulseAudio() bool
}

// Backend names returned by Register.
const (
	BackendNone  = ""
	BackendALSA  = "alsa"
	BackendPulse = "pulseaudio"
)

// Register registers the backend chosen by pref and returns its name, or
// BackendNone when nothing could be registered. An explicit preference is
// never substituted by the other backend.
func Register(pref Preference, reg Registrar, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	switch pref {
	case PreferALSA:
		if reg.RegisterALSA() {
			return BackendALSA
		}
	case PreferPulse:
		if reg.RegisterPulseAudio() {
			return BackendPulse
		}
	default:
		if reg.RegisterPulseAudio() {
			return BackendPulse
		}
		logger.Info("pulseaudio unavailable, falling back to alsa")
		if reg.RegisterALSA() {
			return BackendALSA
		}
	}

	logger.Warn("no audio sink registered", "preference", pref.String())
	return BackendNone
}
