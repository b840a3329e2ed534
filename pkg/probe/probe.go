// Package probe wraps the OS primitives the engine samples: seconds since last
// user input and the currently focused window. Implementations carry no
// tracking state of their own.
package probe

import (
	"os"

	"github.com/pkg/errors"
)

// WindowInfo identifies a focused window at one instant.
type WindowInfo struct {
	WindowID    uint32
	Title       string
	AppName     string
	ProcessName string
	PID         int32
	URL         string // browser windows only, empty elsewhere
}

// Probe is the OS capability consumed by the idle monitor and window tracker.
type Probe interface {
	// IdleSeconds returns seconds since the last keyboard/mouse input.
	IdleSeconds() (int, error)

	// FocusedWindow returns the currently focused window.
	FocusedWindow() (*WindowInfo, error)

	// Subscribe invokes cb on every focus or title change until Unsubscribe.
	// Only one subscription is supported at a time.
	Subscribe(cb func(WindowInfo)) error

	// Unsubscribe stops callback delivery.
	Unsubscribe()

	// Close releases the underlying OS connection.
	Close() error
}

// Resolve resolves the OS probe once at startup. A nil probe with an error is
// the Unavailable variant: dependent components disable themselves and the
// engine runs degraded instead of crashing.
func Resolve() (Probe, error) {
	if os.Getenv("DISPLAY") == "" {
		return nil, errors.New("no X11 display available (DISPLAY is not set)")
	}
	p, err := NewX11()
	if err != nil {
		return nil, errors.Wrap(err, "x11 probe unavailable")
	}
	return p, nil
}
