package exec

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agently/agently/pkg/ax"
)

// Element references come in three textual shapes besides graph-native
// ids, tried in order:
//
//	AXButton label:'Save'    structured role + property query
//	AXButton 'Save'          legacy unstructured role + text
//	Save                     free-text containment, last resort
var (
	structuredRef = regexp.MustCompile(`^(\S+)\s+(label|title|value|any):'(.*)'$`)
	legacyRef     = regexp.MustCompile(`^(\S+)\s+'(.*)'$`)
)

// Resolve maps a planner-supplied element reference to an element of g.
// Returns ok == false when every strategy fails; the caller forwards the
// raw reference and fails the intent with "element not found" rather
// than treating this as a crash.
func Resolve(g *ax.Graph, ref string) (ax.Element, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ax.Element{}, false
	}

	// 1. Graph-native identity.
	if el, ok := g.Lookup(ref); ok {
		return el, true
	}

	// 2. Structured semantic reference.
	if m := structuredRef.FindStringSubmatch(ref); m != nil {
		if el, ok := matchByRole(g, m[1], m[2], m[3]); ok {
			return el, true
		}
	}

	// 3. Legacy unstructured form.
	if m := legacyRef.FindStringSubmatch(ref); m != nil {
		if el, ok := matchByRole(g, m[1], "any", m[2]); ok {
			return el, true
		}
	}

	// 4. Free-text containment across every element.
	return containmentSearch(g, ref)
}

// matchByRole finds an element of the given role whose property equals
// text (case-insensitive). Falls back to containment within the role
// when no exact match exists. Candidates are scanned in id order so
// resolution is deterministic.
func matchByRole(g *ax.Graph, role, prop, text string) (ax.Element, bool) {
	candidates := sortedByID(g.ByRole(role))

	for _, el := range candidates {
		if propertyEquals(el, prop, text) {
			return el, true
		}
	}
	for _, el := range candidates {
		if propertyContains(el, prop, text) {
			return el, true
		}
	}
	return ax.Element{}, false
}

func containmentSearch(g *ax.Graph, text string) (ax.Element, bool) {
	needle := strings.ToLower(text)

	var all []ax.Element
	for _, el := range g.Elements {
		all = append(all, el)
	}
	for _, el := range sortedByID(all) {
		if strings.Contains(strings.ToLower(el.Label), needle) ||
			strings.Contains(strings.ToLower(el.Title), needle) ||
			strings.Contains(strings.ToLower(el.Value), needle) {
			return el, true
		}
	}
	return ax.Element{}, false
}

func propertyEquals(el ax.Element, prop, text string) bool {
	switch prop {
	case "label":
		return strings.EqualFold(el.Label, text)
	case "title":
		return strings.EqualFold(el.Title, text)
	case "value":
		return strings.EqualFold(el.Value, text)
	default: // any
		return strings.EqualFold(el.Label, text) ||
			strings.EqualFold(el.Title, text) ||
			strings.EqualFold(el.Value, text)
	}
}

func propertyContains(el ax.Element, prop, text string) bool {
	needle := strings.ToLower(text)
	switch prop {
	case "label":
		return strings.Contains(strings.ToLower(el.Label), needle)
	case "title":
		return strings.Contains(strings.ToLower(el.Title), needle)
	case "value":
		return strings.Contains(strings.ToLower(el.Value), needle)
	default:
		return strings.Contains(strings.ToLower(el.Label), needle) ||
			strings.Contains(strings.ToLower(el.Title), needle) ||
			strings.Contains(strings.ToLower(el.Value), needle)
	}
}

func sortedByID(els []ax.Element) []ax.Element {
	sort.Slice(els, func(i, j int) bool { return els[i].ID < els[j].ID })
	return els
}
