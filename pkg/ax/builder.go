package ax

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/agently/agently/internal/logging"
)

// BuilderConfig bounds the resources one snapshot build may consume.
type BuilderConfig struct {
	// MaxDepth stops traversal below this many levels under a window.
	MaxDepth int
	// MaxElements caps the total number of elements in the graph.
	MaxElements int
	// Timeout aborts the build, returning whatever was accumulated.
	Timeout time.Duration
	// SkipLargeContainers caps descent into oversized tables/outlines.
	SkipLargeContainers bool
	// LargeContainerThreshold is the child count above which a container
	// counts as oversized.
	LargeContainerThreshold int
	// ContainerChildCap is how many children of an oversized container
	// are still descended into.
	ContainerChildCap int
	// PruneDepth is the depth below which decorative-only elements
	// (static text, images) are dropped from the graph.
	PruneDepth int
}

// DefaultBuilderConfig returns the budgets used when the config file
// leaves the snapshot section empty.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		MaxDepth:                12,
		MaxElements:             2000,
		Timeout:                 10 * time.Second,
		SkipLargeContainers:     true,
		LargeContainerThreshold: 50,
		ContainerChildCap:       25,
		PruneDepth:              3,
	}
}

// Roles that typically carry huge child lists.
var largeContainerRoles = map[string]bool{
	"AXTable":      true,
	"AXOutline":    true,
	"AXScrollArea": true,
	"AXList":       true,
}

// Roles that are decorative-only and prunable past PruneDepth.
var decorativeRoles = map[string]bool{
	"AXStaticText": true,
	"AXImage":      true,
}

// Builder converts the live accessibility tree into a bounded Graph.
// A Builder is cheap and stateless between builds; the attribute cache
// lives only for the duration of one Build call.
type Builder struct {
	provider Provider
	cfg      BuilderConfig
}

// NewBuilder creates a snapshot builder over the given provider.
func NewBuilder(provider Provider, cfg BuilderConfig) *Builder {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultBuilderConfig().MaxDepth
	}
	if cfg.MaxElements <= 0 {
		cfg.MaxElements = DefaultBuilderConfig().MaxElements
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBuilderConfig().Timeout
	}
	if cfg.LargeContainerThreshold <= 0 {
		cfg.LargeContainerThreshold = DefaultBuilderConfig().LargeContainerThreshold
	}
	if cfg.ContainerChildCap <= 0 {
		cfg.ContainerChildCap = DefaultBuilderConfig().ContainerChildCap
	}
	return &Builder{provider: provider, cfg: cfg}
}

// buildState carries the per-build attribute cache and accumulators.
type buildState struct {
	elements map[string]Element
	roots    []string
	attrs    map[ElementHandle]Attributes
	deadline time.Time
	truncated bool
}

func (s *buildState) expired() bool {
	return time.Now().After(s.deadline)
}

// Build walks every regular application's windows and returns a bounded
// immutable Graph. Per-application failures are logged and skipped; a
// total enumeration failure yields an empty Graph, not an error.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	state := &buildState{
		elements: make(map[string]Element),
		attrs:    make(map[ElementHandle]Attributes),
		deadline: time.Now().Add(b.cfg.Timeout),
	}

	ctx, cancel := context.WithDeadline(ctx, state.deadline)
	defer cancel()

	apps, err := b.provider.Applications(ctx)
	if err != nil {
		logging.Warn("application enumeration failed, returning empty graph", "error", err)
		apps = nil
	}

	for _, app := range apps {
		if state.expired() || len(state.elements) >= b.cfg.MaxElements {
			state.truncated = true
			break
		}
		windows, err := b.provider.Windows(ctx, app)
		if err != nil {
			logging.Warn("skipping application, window enumeration failed",
				"app", app.Name, "pid", app.PID, "error", err)
			continue
		}
		for _, win := range windows {
			b.walk(ctx, state, win, app.Name, "", 0)
		}
	}

	active, err := b.provider.Frontmost(ctx)
	if err != nil {
		logging.Debug("frontmost application query failed", "error", err)
	}

	if state.truncated {
		logging.Warn("snapshot truncated by budget",
			"elements", len(state.elements),
			"max_elements", b.cfg.MaxElements,
			"timed_out", state.expired())
	}

	return &Graph{
		Elements:          state.elements,
		RootElements:      state.roots,
		Timestamp:         time.Now(),
		ActiveApplication: active,
	}, nil
}

// walk recursively adds the element at handle and its children to the
// graph. Returns the assigned id, or "" when the element was pruned or
// a budget stopped the descent.
func (b *Builder) walk(ctx context.Context, state *buildState, h ElementHandle, appName, parentID string, depth int) string {
	if depth > b.cfg.MaxDepth || state.expired() || len(state.elements) >= b.cfg.MaxElements {
		state.truncated = true
		return ""
	}

	attrs, err := b.attributes(ctx, state, h)
	if err != nil {
		logging.Debug("attribute fetch failed", "app", appName, "error", err)
		return ""
	}

	if pruneRole(attrs.Role, depth, b.cfg.PruneDepth) {
		return ""
	}

	id := StableID(attrs, appName, parentID)
	// Reserve the map slot before descending so the element budget holds
	// exactly even when children are added first.
	state.elements[id] = Element{ID: id}
	el := Element{
		ID:              id,
		Role:            attrs.Role,
		Title:           attrs.Title,
		Label:           attrs.Label,
		Value:           attrs.Value,
		Position:        attrs.Position,
		Size:            attrs.Size,
		Enabled:         attrs.Enabled,
		Focused:         attrs.Focused,
		Parent:          parentID,
		ApplicationName: appName,
		handle:          h,
	}

	children, err := b.provider.Children(ctx, h)
	if err != nil {
		logging.Debug("child enumeration failed", "app", appName, "role", attrs.Role, "error", err)
		children = nil
	}

	if b.cfg.SkipLargeContainers && largeContainerRoles[attrs.Role] && len(children) > b.cfg.LargeContainerThreshold {
		logging.Warn("capping oversized container",
			"role", attrs.Role, "app", appName,
			"children", len(children), "cap", b.cfg.ContainerChildCap)
		children = children[:b.cfg.ContainerChildCap]
		state.truncated = true
	}

	for _, child := range children {
		childID := b.walk(ctx, state, child, appName, id, depth+1)
		if childID != "" {
			el.Children = append(el.Children, childID)
		}
	}

	state.elements[id] = el
	if parentID == "" {
		state.roots = append(state.roots, id)
	}
	return id
}

// attributes performs the batched fetch, memoized per build so repeated
// queries for the same handle within one pass are free.
func (b *Builder) attributes(ctx context.Context, state *buildState, h ElementHandle) (Attributes, error) {
	if cached, ok := state.attrs[h]; ok {
		return cached, nil
	}
	attrs, err := b.provider.Attributes(ctx, h)
	if err != nil {
		return Attributes{}, err
	}
	state.attrs[h] = attrs
	return attrs, nil
}

// pruneRole reports whether an element adds no interactive surface and
// should be dropped. Unknown roles are always pruned; decorative roles
// only once the walk is past the shallow prune depth.
func pruneRole(role string, depth, pruneDepth int) bool {
	if role == "" || role == "AXUnknown" {
		return true
	}
	if pruneDepth > 0 && depth > pruneDepth && decorativeRoles[role] {
		return true
	}
	return false
}

// StableID derives an element's identity from its structure rather than
// from allocation order, so re-snapshotting an unchanged UI region yields
// the same ids. Geometry is rounded to absorb sub-pixel jitter. Chaining
// the parent id makes the hash order-sensitive along the ancestor path.
// Collisions between structurally identical siblings are a known,
// accepted limitation.
func StableID(attrs Attributes, appName, parentID string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%d|%d|%d|%s|%s|%s|%s",
		attrs.Role,
		int(math.Round(attrs.Position.X)),
		int(math.Round(attrs.Position.Y)),
		int(math.Round(attrs.Size.Width)),
		int(math.Round(attrs.Size.Height)),
		attrs.Label,
		attrs.Title,
		appName,
		parentID,
	)
	return fmt.Sprintf("ax-%016x", h.Sum64())
}
