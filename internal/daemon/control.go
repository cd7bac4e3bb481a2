package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/1broseidon/vidout/internal/display"
	"github.com/1broseidon/vidout/internal/ipc"
)

// controlTimeout bounds how long a control request waits for the render
// goroutine.
const controlTimeout = 8 * time.Second

var _ ipc.Controller = (*Runner)(nil)

// SetMode switches the active window to the catalog mode best matching
// spec. A rate-less spec picks the highest rate for that size.
func (r *Runner) SetMode(spec string) (ipc.StatusData, error) {
	want, err := display.ParseMode(spec)
	if err != nil {
		return ipc.StatusData{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	err = r.Do(ctx, func(m *display.Manager) error {
		target, ok := display.Match(m.Modes(), want)
		if !ok {
			return fmt.Errorf("%w: %s is not offered by the hardware", display.ErrModeSet, spec)
		}
		if target.Equal(m.CurrentMode()) {
			return nil
		}
		return m.SetFullScreen(true, target, false)
	})
	if err != nil {
		return ipc.StatusData{}, err
	}
	return r.Status(), nil
}

// UpdateResolutions re-queries the hardware and republishes the catalog.
func (r *Runner) UpdateResolutions() (ipc.ModesData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	err := r.Do(ctx, func(m *display.Manager) error {
		m.UpdateResolutions()
		return nil
	})
	if err != nil {
		return ipc.ModesData{}, err
	}
	return r.Modes(), nil
}

// Suspend tells every display resource the display is lost. Rendering
// pauses until Resume, even if a mode switch resets the display meanwhile.
func (r *Runner) Suspend() error {
	return r.notify(true, display.EventLost)
}

// Resume tells every display resource the display is usable again.
func (r *Runner) Resume() error {
	return r.notify(false, display.EventReset)
}

func (r *Runner) notify(suspended bool, ev display.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	return r.Do(ctx, func(m *display.Manager) error {
		r.suspended.Store(suspended)
		m.Notify(ev)
		return nil
	})
}
