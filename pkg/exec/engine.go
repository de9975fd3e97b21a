// Package exec maps typed intents onto native pointer, keyboard, and
// window operations. Every execution produces an Outcome; intent-local
// failures (unresolvable targets, bad parameters, rejected native
// actions) are recorded there and never returned as Go errors.
package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agently/agently/internal/logging"
	"github.com/agently/agently/internal/sandbox"
	"github.com/agently/agently/pkg/ax"
	"github.com/agently/agently/pkg/input"
	"github.com/agently/agently/pkg/intent"
)

var (
	// ErrElementNotFound is the deliberate, non-fatal failure when every
	// resolution strategy comes up empty.
	ErrElementNotFound = errors.New("element not found")

	// ErrNotImplemented marks intents the engine does not support by
	// contract (drag).
	ErrNotImplemented = errors.New("not implemented")
)

// Config tunes execution behavior.
type Config struct {
	// ActivateApplications brings an element's owning application to the
	// foreground before pointer actions when it is not already frontmost.
	ActivateApplications bool
	// ActivationSettle is the pause after an activation call.
	ActivationSettle time.Duration
	// TypeDelay is the pause between synthesized characters; typing too
	// fast drops keystrokes in some applications.
	TypeDelay time.Duration
	// ScreenshotDir is where screenshot intents persist captures.
	ScreenshotDir string
}

// DefaultConfig returns the execution defaults.
func DefaultConfig() Config {
	return Config{
		ActivateApplications: true,
		ActivationSettle:     300 * time.Millisecond,
		TypeDelay:            20 * time.Millisecond,
		ScreenshotDir:        filepath.Join(os.TempDir(), "agently-screenshots"),
	}
}

// handlerFunc executes one decoded intent against a graph.
type handlerFunc func(ctx context.Context, in intent.Intent, g *ax.Graph) error

// Engine executes intents using the accessibility provider for semantic
// actions and the synthesizer for raw input fallback.
type Engine struct {
	provider ax.Provider
	synth    input.Synthesizer
	sandbox  *sandbox.Sandbox
	cfg      Config
	handlers map[intent.Kind]handlerFunc
}

// New creates an execution engine. The sandbox may be nil, in which case
// every application is fair game.
func New(provider ax.Provider, synth input.Synthesizer, sb *sandbox.Sandbox, cfg Config) *Engine {
	e := &Engine{
		provider: provider,
		synth:    synth,
		sandbox:  sb,
		cfg:      cfg,
	}
	e.handlers = map[intent.Kind]handlerFunc{
		intent.KindClick:       e.clickHandler(input.ButtonLeft, 1),
		intent.KindDoubleClick: e.clickHandler(input.ButtonLeft, 2),
		intent.KindRightClick:  e.clickHandler(input.ButtonRight, 1),
		intent.KindFocus:       e.focus,
		intent.KindType:        e.typeText,
		intent.KindKeyPress:    e.keyPress,
		intent.KindScroll:      e.scroll,
		intent.KindWait:        e.wait,
		intent.KindScreenshot:  e.screenshot,
		intent.KindDrag:        e.drag,
	}
	return e
}

// Execute runs one intent against the graph it was planned for and
// returns a structured Outcome. Wall-clock execution time is recorded
// regardless of success.
func (e *Engine) Execute(ctx context.Context, in intent.Intent, g *ax.Graph) intent.Outcome {
	start := time.Now()

	handler, ok := e.handlers[in.Kind]
	if !ok {
		return intent.Failed(in, fmt.Errorf("unknown intent kind %q", in.Kind), time.Since(start))
	}

	logging.Info("executing intent", "kind", string(in.Kind), "target", in.TargetElementID, "description", in.Description)

	if err := handler(ctx, in, g); err != nil {
		logging.Warn("intent failed", "kind", string(in.Kind), "error", err)
		return intent.Failed(in, err, time.Since(start))
	}
	return intent.Succeeded(in, time.Since(start))
}

// target resolves the intent's element reference and applies the
// application policy.
func (e *Engine) target(in intent.Intent, g *ax.Graph) (ax.Element, error) {
	el, ok := Resolve(g, in.TargetElementID)
	if !ok {
		return ax.Element{}, fmt.Errorf("%w: %q", ErrElementNotFound, in.TargetElementID)
	}
	if err := e.sandbox.CheckApplication(el.ApplicationName); err != nil {
		return ax.Element{}, err
	}
	return el, nil
}

// activateIfNeeded brings the element's owning application frontmost.
// The provider escalates from a scripted activation to a process-level
// call on its own; the settle pause runs here after every attempt, even
// a failed one, since the application may have come forward anyway.
func (e *Engine) activateIfNeeded(ctx context.Context, el ax.Element, g *ax.Graph) {
	if !e.cfg.ActivateApplications || el.ApplicationName == "" || el.ApplicationName == g.ActiveApplication {
		return
	}
	if err := e.provider.Activate(ctx, ax.AppHandle{Name: el.ApplicationName}); err != nil {
		logging.Warn("application activation failed", "app", el.ApplicationName, "error", err)
	}
	sleep(ctx, e.cfg.ActivationSettle)
}

func (e *Engine) clickHandler(button input.MouseButton, clicks int) handlerFunc {
	return func(ctx context.Context, in intent.Intent, g *ax.Graph) error {
		el, err := e.target(in, g)
		if err != nil {
			return err
		}
		e.activateIfNeeded(ctx, el, g)

		// Left single clicks prefer the semantic press action; it works
		// on occluded elements and respects the app's own handling.
		if button == input.ButtonLeft && clicks == 1 && el.Handle() != "" {
			perr := e.provider.Perform(ctx, el.Handle(), ax.ActionPress)
			if perr == nil {
				return nil
			}
			logging.Debug("semantic press unavailable, falling back to synthesized click",
				"element", el.ID, "error", perr)
		}

		if err := e.synth.Click(ctx, el.Center(), button, clicks); err != nil {
			return fmt.Errorf("synthesized click: %w", err)
		}
		return nil
	}
}

func (e *Engine) focus(ctx context.Context, in intent.Intent, g *ax.Graph) error {
	el, err := e.target(in, g)
	if err != nil {
		return err
	}
	e.activateIfNeeded(ctx, el, g)

	if el.Handle() != "" {
		if err := e.provider.Perform(ctx, el.Handle(), ax.ActionFocus); err == nil {
			return nil
		}
	}
	// A plain click is the portable way to move focus.
	if err := e.synth.Click(ctx, el.Center(), input.ButtonLeft, 1); err != nil {
		return fmt.Errorf("focus click: %w", err)
	}
	return nil
}

func (e *Engine) typeText(ctx context.Context, in intent.Intent, _ *ax.Graph) error {
	params, err := in.TypeParams()
	if err != nil {
		return err
	}
	for _, r := range params.Text {
		code, mods, err := input.StrokeForRune(r)
		if err != nil {
			return fmt.Errorf("unsupported character %q: %w", r, err)
		}
		if err := e.synth.KeyStroke(ctx, code, mods); err != nil {
			return fmt.Errorf("key stroke for %q: %w", r, err)
		}
		sleep(ctx, e.cfg.TypeDelay)
	}
	return nil
}

func (e *Engine) keyPress(ctx context.Context, in intent.Intent, _ *ax.Graph) error {
	params, err := in.KeyPressParams()
	if err != nil {
		return err
	}
	code, mods, err := input.ParseChord(params.Key)
	if err != nil {
		return err
	}
	if err := e.synth.KeyStroke(ctx, code, mods); err != nil {
		return fmt.Errorf("key stroke %q: %w", params.Key, err)
	}
	return nil
}

// scroll only synthesizes vertical wheel events; horizontal directions
// map onto the same code path as an approximation.
func (e *Engine) scroll(ctx context.Context, in intent.Intent, _ *ax.Graph) error {
	params, err := in.ScrollParams()
	if err != nil {
		return err
	}
	lines := int(params.Amount)
	if lines == 0 {
		lines = 3
	}
	switch params.Direction {
	case "down", "right":
		lines = -lines
	}
	if err := e.synth.Scroll(ctx, lines); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// wait is an intentional synchronous suspension point: no other intent
// runs until it returns.
func (e *Engine) wait(ctx context.Context, in intent.Intent, _ *ax.Graph) error {
	params, err := in.WaitParams()
	if err != nil {
		return err
	}
	sleep(ctx, time.Duration(params.Seconds*float64(time.Second)))
	return nil
}

// screenshot persists a display capture for diagnostics. A failed
// capture is logged, not propagated; the intent still succeeds.
func (e *Engine) screenshot(ctx context.Context, _ intent.Intent, _ *ax.Graph) error {
	if err := os.MkdirAll(e.cfg.ScreenshotDir, 0755); err != nil {
		logging.Warn("screenshot dir unavailable", "dir", e.cfg.ScreenshotDir, "error", err)
		return nil
	}
	path := filepath.Join(e.cfg.ScreenshotDir, fmt.Sprintf("screenshot-%d.png", time.Now().UnixNano()))
	if err := e.synth.CaptureDisplay(ctx, path); err != nil {
		logging.Warn("screenshot capture failed", "path", path, "error", err)
		return nil
	}
	logging.Info("screenshot saved", "path", path)
	return nil
}

func (e *Engine) drag(_ context.Context, _ intent.Intent, _ *ax.Graph) error {
	return fmt.Errorf("drag: %w", ErrNotImplemented)
}

// sleep blocks for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
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
