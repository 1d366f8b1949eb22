// Package catalog holds the tool descriptors the server advertises. The set
// is immutable once built; hot reload swaps whole catalogs.
package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/agnivade/levenshtein"
)

// Tool describes one invocable tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// defaultSchema accepts any object, for tools that declare no schema of
// their own.
var defaultSchema = json.RawMessage(`{"type":"object","additionalProperties":true}`)

// Catalog is an ordered, name-indexed set of tool descriptors. Read-only
// after construction and safe to share between connections.
type Catalog struct {
	tools []Tool
	index map[string]int
}

// New builds a catalog from descriptors. Names must be non-empty and unique;
// a missing input schema defaults to a permissive object schema.
func New(tools []Tool) (*Catalog, error) {
	c := &Catalog{
		tools: make([]Tool, 0, len(tools)),
		index: make(map[string]int, len(tools)),
	}
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool with empty name (description %q)", t.Description)
		}
		if _, dup := c.index[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		if len(t.InputSchema) == 0 {
			t.InputSchema = defaultSchema
		}
		c.index[t.Name] = len(c.tools)
		c.tools = append(c.tools, t)
	}
	return c, nil
}

// Tools returns the descriptors in declaration order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.tools)
}

// Lookup returns the named descriptor.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	i, ok := c.index[name]
	if !ok {
		return Tool{}, false
	}
	return c.tools[i], true
}

// Nearest returns the catalog name most similar to the given one, or ""
// when nothing comes close. Used to make unknown-tool errors actionable.
func (c *Catalog) Nearest(name string) string {
	best := ""
	bestScore := 0.0
	for _, t := range c.tools {
		if score := similarity(name, t.Name); score > bestScore {
			best, bestScore = t.Name, score
		}
	}
	if bestScore < 0.5 {
		return ""
	}
	return best
}

// similarity is normalized Levenshtein similarity in [0,1].
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := max(len(a), len(b))
	return 1.0 - float64(dist)/float64(maxLen)
}

// Builtin returns the catalog for the built-in scene bridge.
func Builtin() *Catalog {
	names := []struct{ name, desc string }{
		{"ping", "Simple connectivity test (returns pong)"},
		{"list_objects", "List all objects in the scene"},
		{"find_objects_by_name", "Find scene objects by name pattern"},
		{"spawn_object", "Spawn an object of a given type"},
		{"destroy_object", "Remove an object by name"},
		{"set_object_property", "Set a property on an object"},
		{"get_object_property", "Get a property from an object"},
		{"get_scene_snapshot", "Dump the full scene state"},
	}

	c := &Catalog{
		tools: make([]Tool, 0, len(names)),
		index: make(map[string]int, len(names)),
	}
	for _, n := range names {
		c.index[n.name] = len(c.tools)
		c.tools = append(c.tools, Tool{Name: n.name, Description: n.desc, InputSchema: defaultSchema})
	}
	return c
}
