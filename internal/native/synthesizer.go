package native

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/input"
)

// CGEventFlags bits for modifier keys.
const (
	flagShift   = 0x00020000
	flagControl = 0x00040000
	flagOption  = 0x00080000
	flagCommand = 0x00100000
	flagFn      = 0x00800000
)

// Synthesizer posts low-level input events through the CoreGraphics
// event tap, reached via the osascript JavaScript-ObjC bridge. Display
// capture shells out to screencapture.
type Synthesizer struct {
	bridge        *bridge
	screencapture string
}

// NewSynthesizer returns the scripting-bridge input synthesizer, or
// input.ErrUnavailable when osascript is missing.
func NewSynthesizer() (*Synthesizer, error) {
	b, err := newBridge()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", input.ErrUnavailable, err)
	}
	capture, _ := exec.LookPath("screencapture")
	return &Synthesizer{bridge: b, screencapture: capture}, nil
}

// Click posts a mouse-down/mouse-up pair at pt. clicks is the click
// count carried by both events (2 for a double-click).
func (s *Synthesizer) Click(ctx context.Context, pt ax.Point, button input.MouseButton, clicks int) error {
	if clicks < 1 {
		clicks = 1
	}
	var down, up, cgButton string
	switch button {
	case input.ButtonRight:
		down, up, cgButton = "kCGEventRightMouseDown", "kCGEventRightMouseUp", "kCGMouseButtonRight"
	case input.ButtonCenter:
		down, up, cgButton = "kCGEventOtherMouseDown", "kCGEventOtherMouseUp", "kCGMouseButtonCenter"
	default:
		down, up, cgButton = "kCGEventLeftMouseDown", "kCGEventLeftMouseUp", "kCGMouseButtonLeft"
	}

	script := fmt.Sprintf(`ObjC.import('CoreGraphics');
var pt = {x: %f, y: %f};
var move = $.CGEventCreateMouseEvent($(), $.kCGEventMouseMoved, pt, $.%s);
$.CGEventPost($.kCGHIDEventTap, move);
for (var i = 1; i <= %d; i++) {
	var down = $.CGEventCreateMouseEvent($(), $.%s, pt, $.%s);
	$.CGEventSetIntegerValueField(down, $.kCGMouseEventClickState, i);
	$.CGEventPost($.kCGHIDEventTap, down);
	var up = $.CGEventCreateMouseEvent($(), $.%s, pt, $.%s);
	$.CGEventSetIntegerValueField(up, $.kCGMouseEventClickState, i);
	$.CGEventPost($.kCGHIDEventTap, up);
}`, pt.X, pt.Y, cgButton, clicks, down, cgButton, up, cgButton)

	if _, err := s.bridge.runJXA(ctx, script); err != nil {
		return fmt.Errorf("synthesize click at (%.0f, %.0f): %w", pt.X, pt.Y, err)
	}
	return nil
}

// KeyStroke posts a key-down/key-up pair with the modifier flags held.
func (s *Synthesizer) KeyStroke(ctx context.Context, code input.KeyCode, mods input.Modifier) error {
	script := fmt.Sprintf(`ObjC.import('CoreGraphics');
var down = $.CGEventCreateKeyboardEvent($(), %d, true);
var up = $.CGEventCreateKeyboardEvent($(), %d, false);
$.CGEventSetFlags(down, %d);
$.CGEventSetFlags(up, %d);
$.CGEventPost($.kCGHIDEventTap, down);
$.CGEventPost($.kCGHIDEventTap, up);`, code, code, eventFlags(mods), eventFlags(mods))

	if _, err := s.bridge.runJXA(ctx, script); err != nil {
		return fmt.Errorf("synthesize keystroke %d: %w", code, err)
	}
	return nil
}

// Scroll posts a line-unit scroll wheel event. Negative lines scroll
// down, positive up.
func (s *Synthesizer) Scroll(ctx context.Context, lines int) error {
	script := fmt.Sprintf(`ObjC.import('CoreGraphics');
var ev = $.CGEventCreateScrollWheelEvent($(), $.kCGScrollEventUnitLine, 1, %d);
$.CGEventPost($.kCGHIDEventTap, ev);`, lines)

	if _, err := s.bridge.runJXA(ctx, script); err != nil {
		return fmt.Errorf("synthesize scroll of %d lines: %w", lines, err)
	}
	return nil
}

// CaptureDisplay writes a PNG of the full display to path.
func (s *Synthesizer) CaptureDisplay(ctx context.Context, path string) error {
	if s.screencapture == "" {
		return fmt.Errorf("capture display: screencapture not found: %w", input.ErrUnavailable)
	}
	cmd := exec.CommandContext(ctx, s.screencapture, "-x", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("screencapture: %s: %w", string(out), err)
	}
	return nil
}

func eventFlags(mods input.Modifier) uint64 {
	var flags uint64
	if mods&input.ModShift != 0 {
		flags |= flagShift
	}
	if mods&input.ModControl != 0 {
		flags |= flagControl
	}
	if mods&input.ModOption != 0 {
		flags |= flagOption
	}
	if mods&input.ModCommand != 0 {
		flags |= flagCommand
	}
	if mods&input.ModFn != 0 {
		flags |= flagFn
	}
	return flags
}

var _ input.Synthesizer = (*Synthesizer)(nil)
