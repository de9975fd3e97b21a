package native

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agently/agently/internal/logging"
	"github.com/agently/agently/pkg/ax"
)

// fieldSep separates attribute fields in script output. A control
// character keeps titles and values with embedded tabs from corrupting
// the parse.
const fieldSep = "\x1f"

// activationStageDelay lets a rejected frontmost call settle before the
// process-level fallback fires.
const activationStageDelay = 150 * time.Millisecond

// scriptFunc runs an AppleScript source and returns trimmed stdout.
type scriptFunc func(ctx context.Context, script string) (string, error)

// Provider reads the accessibility tree through System Events. Element
// handles are System Events object specifiers ("window 1 of application
// process \"Notes\"") and stay valid only while the element exists.
type Provider struct {
	run scriptFunc
}

// NewProvider returns the scripting-bridge accessibility provider, or
// ax.ErrUnavailable when no osascript binary exists on this system.
func NewProvider() (*Provider, error) {
	b, err := newBridge()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ax.ErrUnavailable, err)
	}
	return &Provider{run: b.runAppleScript}, nil
}

// Applications enumerates foreground-capable processes.
func (p *Provider) Applications(ctx context.Context) ([]ax.AppHandle, error) {
	script := `tell application "System Events"
	set out to ""
	repeat with proc in (every application process whose background only is false)
		set out to out & (unix id of proc) & tab & (name of proc) & linefeed
	end repeat
	return out
end tell`
	out, err := p.run(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("enumerate applications: %w", err)
	}

	var apps []ax.AppHandle
	for _, line := range strings.Split(out, "\n") {
		pid, name, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(pid)
		if err != nil {
			continue
		}
		apps = append(apps, ax.AppHandle{PID: id, Name: name})
	}
	return apps, nil
}

// Windows returns handles for the application's top-level windows.
func (p *Provider) Windows(ctx context.Context, app ax.AppHandle) ([]ax.ElementHandle, error) {
	proc := fmt.Sprintf("application process %s", quote(app.Name))
	script := fmt.Sprintf(`tell application "System Events" to count windows of %s`, proc)
	out, err := p.run(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("count windows of %s: %w", app.Name, err)
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return nil, fmt.Errorf("window count of %s: unexpected output %q", app.Name, out)
	}

	handles := make([]ax.ElementHandle, 0, n)
	for i := 1; i <= n; i++ {
		handles = append(handles, ax.ElementHandle(fmt.Sprintf("window %d of %s", i, proc)))
	}
	return handles, nil
}

// Attributes fetches the element's full attribute set in one script
// round-trip. Attributes the element does not carry come back zero.
func (p *Provider) Attributes(ctx context.Context, h ax.ElementHandle) (ax.Attributes, error) {
	script := fmt.Sprintf(`tell application "System Events"
	set el to %s
	set sep to character id 31
	set out to ""
	try
		set out to out & ((role of el) as text)
	end try
	set out to out & sep
	try
		set out to out & ((title of el) as text)
	end try
	set out to out & sep
	try
		set out to out & ((description of el) as text)
	end try
	set out to out & sep
	try
		set out to out & ((value of el) as text)
	end try
	set out to out & sep
	try
		set pos to position of el
		set sz to size of el
		set out to out & ((item 1 of pos) as text) & sep & ((item 2 of pos) as text) & sep & ((item 1 of sz) as text) & sep & ((item 2 of sz) as text)
	on error
		set out to out & "0" & sep & "0" & sep & "0" & sep & "0"
	end try
	set out to out & sep
	try
		set out to out & ((enabled of el) as text)
	on error
		set out to out & "true"
	end try
	set out to out & sep
	try
		set out to out & ((focused of el) as text)
	on error
		set out to out & "false"
	end try
	return out
end tell`, h)

	out, err := p.run(ctx, script)
	if err != nil {
		return ax.Attributes{}, fmt.Errorf("attributes of %s: %w", h, err)
	}
	return parseAttributes(out)
}

// parseAttributes decodes the separator-joined attribute record
// produced by the Attributes script.
func parseAttributes(out string) (ax.Attributes, error) {
	fields := strings.Split(out, fieldSep)
	if len(fields) != 10 {
		return ax.Attributes{}, fmt.Errorf("attribute record has %d fields, want 10", len(fields))
	}

	num := func(s string) float64 {
		f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f
	}
	return ax.Attributes{
		Role:     fields[0],
		Title:    fields[1],
		Label:    fields[2],
		Value:    fields[3],
		Position: ax.Point{X: num(fields[4]), Y: num(fields[5])},
		Size:     ax.Size{Width: num(fields[6]), Height: num(fields[7])},
		Enabled:  strings.EqualFold(strings.TrimSpace(fields[8]), "true"),
		Focused:  strings.EqualFold(strings.TrimSpace(fields[9]), "true"),
	}, nil
}

// Children returns ordered handles for the element's UI children.
func (p *Provider) Children(ctx context.Context, h ax.ElementHandle) ([]ax.ElementHandle, error) {
	script := fmt.Sprintf(`tell application "System Events" to count UI elements of %s`, h)
	out, err := p.run(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("count children of %s: %w", h, err)
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return nil, fmt.Errorf("child count of %s: unexpected output %q", h, out)
	}

	children := make([]ax.ElementHandle, 0, n)
	for i := 1; i <= n; i++ {
		children = append(children, ax.ElementHandle(fmt.Sprintf("UI element %d of %s", i, h)))
	}
	return children, nil
}

// Perform invokes a semantic accessibility action on the element.
func (p *Provider) Perform(ctx context.Context, h ax.ElementHandle, action string) error {
	var script string
	switch action {
	case ax.ActionPress:
		script = fmt.Sprintf(`tell application "System Events" to perform action "AXPress" of %s`, h)
	case ax.ActionFocus:
		script = fmt.Sprintf(`tell application "System Events" to set focused of %s to true`, h)
	default:
		return fmt.Errorf("unknown accessibility action %q", action)
	}
	if _, err := p.run(ctx, script); err != nil {
		return fmt.Errorf("perform %s on %s: %w", action, h, err)
	}
	return nil
}

// Frontmost reports the frontmost application's name, or "" when no
// regular application is frontmost.
func (p *Provider) Frontmost(ctx context.Context) (string, error) {
	script := `tell application "System Events" to get name of first application process whose frontmost is true`
	out, err := p.run(ctx, script)
	if err != nil {
		return "", nil
	}
	return out, nil
}

// Activate brings the application to the foreground. The System Events
// frontmost call is tried first; when it is rejected (apps mid-launch,
// or processes System Events refuses to script) the process-level
// activate command is the fallback. Each stage gets a settle pause
// before the next step proceeds.
func (p *Provider) Activate(ctx context.Context, app ax.AppHandle) error {
	scripted := fmt.Sprintf(`tell application "System Events" to set frontmost of application process %s to true`, quote(app.Name))
	_, serr := p.run(ctx, scripted)
	if serr == nil {
		return nil
	}
	logging.Debug("scripted activation failed, trying process-level activate",
		"app", app.Name, "error", serr)
	settle(ctx, activationStageDelay)

	fallback := fmt.Sprintf(`tell application %s to activate`, quote(app.Name))
	if _, ferr := p.run(ctx, fallback); ferr != nil {
		return fmt.Errorf("activate %s: %v; process-level fallback: %w", app.Name, serr, ferr)
	}
	return nil
}

// settle blocks for d or until ctx is done, whichever comes first.
func settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

var _ ax.Provider = (*Provider)(nil)
