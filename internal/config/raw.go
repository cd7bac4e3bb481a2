package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawLogging struct {
	Level     *string `yaml:"level"`
	File      *string `yaml:"file"`
	MaxSizeMB *int    `yaml:"max_size_mb"`
	MaxFiles  *int    `yaml:"max_files"`
	JSON      *bool   `yaml:"json"`
}

type RawVirtual struct {
	Modes      *[]string `yaml:"modes"`
	Current    *string   `yaml:"current"`
	AckDelayMS *int      `yaml:"ack_delay_ms"`
}

// RawConfig is one YAML file as written. Nil fields were not set.
type RawConfig struct {
	Include IncludeList `yaml:"include"`

	Backend      *Backend    `yaml:"backend"`
	Display      *string     `yaml:"display"`
	XAuthority   *string     `yaml:"xauthority"`
	Mode         *string     `yaml:"mode"`
	WindowName   *string     `yaml:"window_name"`
	Buffers      *int        `yaml:"buffers"`
	AudioSink    *string     `yaml:"audio_sink"`
	Calibrations *string     `yaml:"calibrations"`
	Reconcile    *int        `yaml:"reconcile_seconds"`
	Logging      *RawLogging `yaml:"logging"`
	Virtual      *RawVirtual `yaml:"virtual"`
}

// merge returns c with every field set in overlay replaced.
func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c
	out.Include = nil

	if overlay.Backend != nil {
		out.Backend = overlay.Backend
	}
	if overlay.Display != nil {
		out.Display = overlay.Display
	}
	if overlay.XAuthority != nil {
		out.XAuthority = overlay.XAuthority
	}
	if overlay.Mode != nil {
		out.Mode = overlay.Mode
	}
	if overlay.WindowName != nil {
		out.WindowName = overlay.WindowName
	}
	if overlay.Buffers != nil {
		out.Buffers = overlay.Buffers
	}
	if overlay.AudioSink != nil {
		out.AudioSink = overlay.AudioSink
	}
	if overlay.Calibrations != nil {
		out.Calibrations = overlay.Calibrations
	}
	if overlay.Reconcile != nil {
		out.Reconcile = overlay.Reconcile
	}
	if overlay.Logging != nil {
		merged := mergeRawLogging(derefOr(c.Logging), *overlay.Logging)
		out.Logging = &merged
	}
	if overlay.Virtual != nil {
		merged := mergeRawVirtual(derefOr(c.Virtual), *overlay.Virtual)
		out.Virtual = &merged
	}
	return out
}

func mergeRawLogging(base RawLogging, overlay RawLogging) RawLogging {
	out := base
	if overlay.Level != nil {
		out.Level = overlay.Level
	}
	if overlay.File != nil {
		out.File = overlay.File
	}
	if overlay.MaxSizeMB != nil {
		out.MaxSizeMB = overlay.MaxSizeMB
	}
	if overlay.MaxFiles != nil {
		out.MaxFiles = overlay.MaxFiles
	}
	if overlay.JSON != nil {
		out.JSON = overlay.JSON
	}
	return out
}

func mergeRawVirtual(base RawVirtual, overlay RawVirtual) RawVirtual {
	out := base
	if overlay.Modes != nil {
		out.Modes = overlay.Modes
	}
	if overlay.Current != nil {
		out.Current = overlay.Current
	}
	if overlay.AckDelayMS != nil {
		out.AckDelayMS = overlay.AckDelayMS
	}
	return out
}

func derefOr[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
