// Package intent defines the action vocabulary exchanged between the
// external planner, the orchestration controller, and the execution
// engine: a single requested action (Intent) and its recorded result
// (Outcome).
package intent

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind enumerates the supported action types. The wire names match what
// the external planner emits.
type Kind string

const (
	KindClick       Kind = "click"
	KindDoubleClick Kind = "double_click"
	KindRightClick  Kind = "right_click"
	KindType        Kind = "type"
	KindKeyPress    Kind = "key_press"
	KindScroll      Kind = "scroll"
	KindDrag        Kind = "drag"
	KindFocus       Kind = "focus"
	KindWait        Kind = "wait"
	KindScreenshot  Kind = "screenshot"
)

// ErrBadParameters marks a missing or malformed intent parameter.
var ErrBadParameters = errors.New("bad intent parameters")

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindClick, KindDoubleClick, KindRightClick, KindType, KindKeyPress,
		KindScroll, KindDrag, KindFocus, KindWait, KindScreenshot:
		return true
	}
	return false
}

// ElementAddressed reports whether intents of this kind require a target
// element to act on.
func (k Kind) ElementAddressed() bool {
	switch k {
	case KindClick, KindDoubleClick, KindRightClick, KindFocus, KindDrag:
		return true
	}
	return false
}

// StateChanging reports whether executing this kind may change the UI,
// requiring a graph rebuild and a verification pass afterwards.
func (k Kind) StateChanging() bool {
	switch k {
	case KindWait, KindScreenshot:
		return false
	}
	return true
}

// Intent is a single requested action. Parameters arrive from the
// planner as a free-form map; the typed accessors below are the only
// sanctioned way to read them, so each kind's required fields are
// checked in one place.
type Intent struct {
	Kind            Kind           `json:"type"`
	TargetElementID string         `json:"target_element_id,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Description     string         `json:"description,omitempty"`
}

// TypeParams is the typed parameter set for "type" intents.
type TypeParams struct {
	Text string
}

// KeyPressParams is the typed parameter set for "key_press" intents.
// Key may be a compound chord like "cmd+shift+s".
type KeyPressParams struct {
	Key string
}

// ScrollParams is the typed parameter set for "scroll" intents.
type ScrollParams struct {
	Direction string // "up", "down", "left", "right"
	Amount    float64
}

// WaitParams is the typed parameter set for "wait" intents.
type WaitParams struct {
	Seconds float64
}

// DragParams is the typed parameter set for "drag" intents.
type DragParams struct {
	ToElementID string
}

// TypeParams decodes and validates parameters for a type intent.
func (in Intent) TypeParams() (TypeParams, error) {
	text, ok := stringParam(in.Parameters, "text")
	if !ok || text == "" {
		return TypeParams{}, fmt.Errorf("%w: type intent missing text", ErrBadParameters)
	}
	return TypeParams{Text: text}, nil
}

// KeyPressParams decodes and validates parameters for a key_press intent.
func (in Intent) KeyPressParams() (KeyPressParams, error) {
	key, ok := stringParam(in.Parameters, "key", "keys")
	if !ok || key == "" {
		return KeyPressParams{}, fmt.Errorf("%w: key_press intent missing key", ErrBadParameters)
	}
	return KeyPressParams{Key: key}, nil
}

// ScrollParams decodes parameters for a scroll intent. Direction defaults
// to "down" and amount to 3 when omitted.
func (in Intent) ScrollParams() (ScrollParams, error) {
	p := ScrollParams{Direction: "down", Amount: 3}
	if dir, ok := stringParam(in.Parameters, "direction"); ok && dir != "" {
		switch dir {
		case "up", "down", "left", "right":
			p.Direction = dir
		default:
			return ScrollParams{}, fmt.Errorf("%w: unknown scroll direction %q", ErrBadParameters, dir)
		}
	}
	if amt, ok := floatParam(in.Parameters, "amount", "delta"); ok {
		p.Amount = amt
	}
	return p, nil
}

// WaitParams decodes parameters for a wait intent. Both "seconds" and the
// planner's older "duration" key are accepted.
func (in Intent) WaitParams() (WaitParams, error) {
	secs, ok := floatParam(in.Parameters, "seconds", "duration")
	if !ok {
		return WaitParams{}, fmt.Errorf("%w: wait intent missing duration", ErrBadParameters)
	}
	if secs < 0 {
		return WaitParams{}, fmt.Errorf("%w: negative wait duration %v", ErrBadParameters, secs)
	}
	return WaitParams{Seconds: secs}, nil
}

// DragParams decodes parameters for a drag intent.
func (in Intent) DragParams() (DragParams, error) {
	to, ok := stringParam(in.Parameters, "to_element_id", "target")
	if !ok || to == "" {
		return DragParams{}, fmt.Errorf("%w: drag intent missing destination", ErrBadParameters)
	}
	return DragParams{ToElementID: to}, nil
}

func stringParam(params map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := params[k]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			return s, true
		}
		return fmt.Sprintf("%v", v), true
	}
	return "", false
}

func floatParam(params map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := params[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// Outcome records the result of executing one Intent. Success == false
// implies ErrorMessage is non-empty.
type Outcome struct {
	Success       bool          `json:"success"`
	Intent        Intent        `json:"intent"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Succeeded builds a successful Outcome.
func Succeeded(in Intent, took time.Duration) Outcome {
	return Outcome{
		Success:       true,
		Intent:        in,
		ExecutionTime: took,
		Timestamp:     time.Now(),
	}
}

// Failed builds a failed Outcome. A nil error still produces a non-empty
// message so the Outcome invariant holds.
func Failed(in Intent, err error, took time.Duration) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{
		Success:       false,
		Intent:        in,
		ErrorMessage:  msg,
		ExecutionTime: took,
		Timestamp:     time.Now(),
	}
}
