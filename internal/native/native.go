// Package native backs the accessibility and input boundaries with the
// macOS scripting bridge: osascript subprocesses against System Events
// for the element tree and the CoreGraphics event taps for synthesized
// input. Everything crosses the bridge as short-lived subprocess calls,
// so the package compiles and constructs on any OS and reports
// unavailability at runtime instead.
package native

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/agently/agently/internal/logging"
)

// bridge runs scripts through osascript.
type bridge struct {
	osascript string
}

func newBridge() (*bridge, error) {
	path, err := exec.LookPath("osascript")
	if err != nil {
		return nil, fmt.Errorf("osascript not found: %w", err)
	}
	return &bridge{osascript: path}, nil
}

// runAppleScript executes an AppleScript source and returns trimmed
// stdout.
func (b *bridge) runAppleScript(ctx context.Context, script string) (string, error) {
	return b.run(ctx, "-e", script)
}

// runJXA executes a JavaScript for Automation source.
func (b *bridge) runJXA(ctx context.Context, script string) (string, error) {
	return b.run(ctx, "-l", "JavaScript", "-e", script)
}

func (b *bridge) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, b.osascript, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		logging.Debug("osascript failed", "error", err, "stderr", msg)
		if msg != "" {
			return "", fmt.Errorf("osascript: %s: %w", msg, err)
		}
		return "", fmt.Errorf("osascript: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// quote escapes a string for embedding inside an AppleScript string
// literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
