// Package input is the boundary to the platform input-synthesis service:
// synthesized pointer and keyboard events, scrolling, and display capture.
package input

import (
	"context"
	"errors"

	"github.com/agently/agently/pkg/ax"
)

// ErrUnavailable is returned when no input-synthesis service is reachable.
var ErrUnavailable = errors.New("input synthesis unavailable")

// MouseButton selects which button a synthesized click carries.
type MouseButton int

const (
	ButtonLeft MouseButton = iota
	ButtonRight
	ButtonCenter
)

// KeyCode is a platform virtual key code.
type KeyCode uint16

// Modifier is a bitmask of held modifier keys.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModControl
	ModOption
	ModCommand
	ModFn
)

// Synthesizer is the black-box capability provider for native input.
// Each call synthesizes the full down/up pair for the event.
type Synthesizer interface {
	// Click posts a mouse-down/mouse-up pair at pt with the given button
	// and click count (2 for a double-click).
	Click(ctx context.Context, pt ax.Point, button MouseButton, clicks int) error

	// KeyStroke posts a key-down/key-up pair for code with mods held.
	KeyStroke(ctx context.Context, code KeyCode, mods Modifier) error

	// Scroll posts a vertical scroll wheel event; negative lines scroll
	// down, positive up.
	Scroll(ctx context.Context, lines int) error

	// CaptureDisplay captures the full display to a PNG at path.
	CaptureDisplay(ctx context.Context, path string) error
}
