package ax

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by providers when the platform accessibility
// service cannot be reached on this system (missing permission grant or
// unsupported OS).
var ErrUnavailable = errors.New("accessibility service unavailable")

// AppHandle identifies a running application to the provider.
type AppHandle struct {
	PID  int
	Name string
}

// ElementHandle is an opaque reference to a live accessibility element.
// Handles are only meaningful to the provider that issued them and only
// for the duration of one snapshot build.
type ElementHandle string

// Attributes is the batched result of one logical attribute fetch for a
// single element. The builder asks for all of these in one provider call
// to keep round-trips bounded.
type Attributes struct {
	Role     string
	Title    string
	Label    string
	Value    string
	Position Point
	Size     Size
	Enabled  bool
	Focused  bool
}

// Semantic accessibility actions the provider can perform on an element.
const (
	ActionPress = "press"
	ActionFocus = "focus"
)

// Provider is the boundary to the platform accessibility service. An
// implementation that cannot enumerate anything (for example because the
// automation permission was never granted) returns empty slices, not
// errors; the builder and preflight treat "everything is empty" as the
// permission-missing signal.
type Provider interface {
	// Applications enumerates regular, foreground-capable processes.
	Applications(ctx context.Context) ([]AppHandle, error)

	// Windows enumerates the top-level windows of one application.
	Windows(ctx context.Context, app AppHandle) ([]ElementHandle, error)

	// Attributes fetches the full attribute set of an element in one call.
	Attributes(ctx context.Context, h ElementHandle) (Attributes, error)

	// Children returns the ordered child elements of h.
	Children(ctx context.Context, h ElementHandle) ([]ElementHandle, error)

	// Perform invokes a named semantic action (press, focus) on an element.
	Perform(ctx context.Context, h ElementHandle, action string) error

	// Frontmost reports the name of the frontmost application, or "".
	Frontmost(ctx context.Context) (string, error)

	// Activate brings an application to the foreground.
	Activate(ctx context.Context, app AppHandle) error
}
