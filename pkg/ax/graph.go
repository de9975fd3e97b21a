package ax

import "time"

// Point is a screen coordinate in global display space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the pixel extent of an element.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element is a single node in the semantic UI graph. Elements are built
// once per snapshot and never mutated; a new action requires a new Graph.
type Element struct {
	ID              string   `json:"id"`
	Role            string   `json:"role"`
	Title           string   `json:"title,omitempty"`
	Label           string   `json:"label,omitempty"`
	Value           string   `json:"value,omitempty"`
	Position        Point    `json:"position"`
	Size            Size     `json:"size"`
	Enabled         bool     `json:"isEnabled"`
	Focused         bool     `json:"isFocused"`
	Children        []string `json:"children,omitempty"`
	Parent          string   `json:"parent,omitempty"`
	ApplicationName string   `json:"applicationName,omitempty"`

	// handle is the live provider reference this element was built from.
	// It is valid only until the next snapshot supersedes this Graph and
	// is never serialized.
	handle ElementHandle
}

// Handle returns the live provider handle, or "" for elements
// reconstructed from serialized graphs.
func (e *Element) Handle() ElementHandle {
	return e.handle
}

// Center returns the midpoint of the element's bounding box, the target
// for synthesized pointer events.
func (e *Element) Center() Point {
	return Point{
		X: e.Position.X + e.Size.Width/2,
		Y: e.Position.Y + e.Size.Height/2,
	}
}

// Text returns the first non-empty of label, title, value.
func (e *Element) Text() string {
	if e.Label != "" {
		return e.Label
	}
	if e.Title != "" {
		return e.Title
	}
	return e.Value
}

// Graph is an immutable snapshot of the accessibility tree. Parent or
// child ids may be absent from Elements when the builder truncated the
// walk; callers must treat dangling references as unknown and never
// dereference them.
type Graph struct {
	Elements          map[string]Element `json:"elements"`
	RootElements      []string           `json:"rootElements"`
	Timestamp         time.Time          `json:"timestamp"`
	ActiveApplication string             `json:"activeApplication,omitempty"`
}

// Lookup returns the element for id, if present.
func (g *Graph) Lookup(id string) (Element, bool) {
	el, ok := g.Elements[id]
	return el, ok
}

// ByRole returns all elements with the given role, in unspecified order.
func (g *Graph) ByRole(role string) []Element {
	var out []Element
	for _, el := range g.Elements {
		if el.Role == role {
			out = append(out, el)
		}
	}
	return out
}

// Depth returns the length of the parent chain above id. Dangling
// parents terminate the walk.
func (g *Graph) Depth(id string) int {
	depth := 0
	for {
		el, ok := g.Elements[id]
		if !ok || el.Parent == "" {
			return depth
		}
		if _, ok := g.Elements[el.Parent]; !ok {
			return depth
		}
		id = el.Parent
		depth++
	}
}
