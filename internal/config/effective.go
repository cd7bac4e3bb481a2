package config

import "fmt"

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s: %s: %v", e.Source.position(), e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// BuildEffectiveConfig applies raw on top of DefaultConfig.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.Backend != nil {
		cfg.Backend = *raw.Backend
	}
	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	if raw.XAuthority != nil {
		cfg.XAuthority = *raw.XAuthority
	}
	if raw.Mode != nil {
		cfg.Mode = *raw.Mode
	}
	if raw.WindowName != nil {
		cfg.WindowName = *raw.WindowName
	}
	if raw.Buffers != nil {
		cfg.Buffers = *raw.Buffers
	}
	if raw.AudioSink != nil {
		cfg.AudioSink = *raw.AudioSink
	}
	if raw.Calibrations != nil {
		cfg.Calibrations = *raw.Calibrations
	}
	if raw.Reconcile != nil {
		cfg.ReconcileSeconds = *raw.Reconcile
	}

	if l := raw.Logging; l != nil {
		if l.Level != nil {
			cfg.Logging.Level = *l.Level
		}
		if l.File != nil {
			cfg.Logging.File = *l.File
		}
		if l.MaxSizeMB != nil {
			cfg.Logging.MaxSizeMB = *l.MaxSizeMB
		}
		if l.MaxFiles != nil {
			cfg.Logging.MaxFiles = *l.MaxFiles
		}
		if l.JSON != nil {
			cfg.Logging.JSON = *l.JSON
		}
	}

	if v := raw.Virtual; v != nil {
		if v.Modes != nil {
			cfg.Virtual.Modes = append([]string(nil), (*v.Modes)...)
		}
		if v.Current != nil {
			cfg.Virtual.Current = *v.Current
		}
		if v.AckDelayMS != nil {
			cfg.Virtual.AckDelayMS = *v.AckDelayMS
		}
	}

	return cfg, nil
}
