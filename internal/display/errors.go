package display

import "errors"

// Error categories. Operations wrap one of these together with the device
// cause, so callers can match either with errors.Is.
var (
	// ErrConnection means the display subsystem could not be opened.
	ErrConnection = errors.New("display connection failed")
	// ErrQuery means mode enumeration failed.
	ErrQuery = errors.New("mode query failed")
	// ErrModeSet means the hardware rejected a mode; the prior mode stays active.
	ErrModeSet = errors.New("mode set failed")
	// ErrAllocation means no presentable surface could be allocated.
	ErrAllocation = errors.New("surface allocation failed")
	// ErrPresentation is a lost or failed page flip. It is fatal to the
	// video pipeline.
	ErrPresentation = errors.New("presentation fault")
	// ErrInvalidState means a lifecycle call was made in the wrong state.
	ErrInvalidState = errors.New("invalid display state")
)

// ErrNoOutputs is returned by a Device when no output is connected.
var ErrNoOutputs = errors.New("no connected outputs")
