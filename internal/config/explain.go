package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/1broseidon/vidout/internal/audiosink"
)

// Explain returns the effective value at a YAML path and where it came from.
//
// Supported paths:
//
//	backend, display, xauthority, mode, window_name, buffers,
//	audio_sink, calibrations, reconcile_seconds,
//	logging.level, logging.file, logging.max_size_mb, logging.max_files, logging.json,
//	virtual.modes, virtual.current, virtual.ack_delay_ms
//
// audio_sink reports the AE_SINK environment variable as its source when set.
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	if path == "audio_sink" {
		if v, ok := os.LookupEnv(audiosink.EnvVar); ok {
			return v, Source{Kind: SourceEnv, Name: audiosink.EnvVar}, nil
		}
	}
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	switch path {
	case "backend":
		return string(cfg.Backend), nil
	case "display":
		return cfg.Display, nil
	case "xauthority":
		return cfg.XAuthority, nil
	case "mode":
		return cfg.Mode, nil
	case "window_name":
		return cfg.WindowName, nil
	case "buffers":
		return cfg.Buffers, nil
	case "audio_sink":
		return cfg.AudioSink, nil
	case "calibrations":
		return cfg.Calibrations, nil
	case "reconcile_seconds":
		return cfg.ReconcileSeconds, nil
	}

	section, key, ok := strings.Cut(path, ".")
	if !ok {
		return nil, fmt.Errorf("unknown path: %s", path)
	}
	switch section {
	case "logging":
		switch key {
		case "level":
			return cfg.Logging.Level, nil
		case "file":
			return cfg.Logging.File, nil
		case "max_size_mb":
			return cfg.Logging.MaxSizeMB, nil
		case "max_files":
			return cfg.Logging.MaxFiles, nil
		case "json":
			return cfg.Logging.JSON, nil
		}
	case "virtual":
		switch key {
		case "modes":
			return cfg.Virtual.Modes, nil
		case "current":
			return cfg.Virtual.Current, nil
		case "ack_delay_ms":
			return cfg.Virtual.AckDelayMS, nil
		}
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}
