package audiosink

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// Malgo registers backends through miniaudio. A backend counts as
// registered once a context restricted to it initialises and reports at
// least one playback device. The context is kept until Close.
type Malgo struct {
	logger *slog.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	backend string
	devices []string
}

var _ Registrar = (*Malgo)(nil)

// NewMalgo returns an unregistered miniaudio registrar.
func NewMalgo(logger *slog.Logger) *Malgo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Malgo{logger: logger.With("component", "audiosink")}
}

// RegisterALSA registers the ALSA backend.
func (m *Malgo) RegisterALSA() bool {
	return m.register(malgo.BackendAlsa, BackendALSA)
}

// RegisterPulseAudio registers the PulseAudio backend.
func (m *Malgo) RegisterPulseAudio() bool {
	return m.register(malgo.BackendPulseaudio, BackendPulse)
}

func (m *Malgo) register(backend malgo.Backend, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return m.backend == name
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(msg string) {
		m.logger.Debug("miniaudio", "backend", name, "message", msg)
	})
	if err != nil {
		m.logger.Debug("failed to init audio context", "backend", name, "error", err)
		return false
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil || len(infos) == 0 {
		if err == nil {
			err = fmt.Errorf("no playback devices")
		}
		m.logger.Debug("audio backend unusable", "backend", name, "error", err)
		release(ctx)
		return false
	}

	names := make([]string, 0, len(infos))
	for i := range infos {
		names = append(names, infos[i].Name())
	}
	m.ctx = ctx
	m.backend = name
	m.devices = names
	m.logger.Info("registered audio sink", "backend", name, "devices", len(names))
	return true
}

// Backend returns the registered backend name.
func (m *Malgo) Backend() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend
}

// Devices returns the playback devices found at registration.
func (m *Malgo) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.devices...)
}

// Close releases the audio context.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	m.backend = ""
	m.devices = nil
	return err
}

func release(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
