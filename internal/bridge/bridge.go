// Package bridge implements the built-in scene bridge, an in-memory command
// backend used when the server is not attached to an external engine. It
// keeps a small scene graph and answers the same commands a real engine
// integration would.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/toolgate/toolgate/internal/logging"
)

// envelope is the command result wire shape. Status is "success" or "error".
type envelope struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Object is one entry in the scene graph.
type Object struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

type handler func(params json.RawMessage) envelope

// SceneBridge executes scene commands against an in-memory scene graph.
// Safe for concurrent use.
type SceneBridge struct {
	mu       sync.RWMutex
	objects  map[string]*Object
	order    []string
	handlers map[string]handler
}

// NewSceneBridge creates a bridge seeded with a few default objects.
func NewSceneBridge() *SceneBridge {
	b := &SceneBridge{
		objects: make(map[string]*Object),
	}
	b.handlers = map[string]handler{
		"ping":                 b.ping,
		"list_objects":         b.listObjects,
		"find_objects_by_name": b.findObjectsByName,
		"spawn_object":         b.spawnObject,
		"destroy_object":       b.destroyObject,
		"set_object_property":  b.setObjectProperty,
		"get_object_property":  b.getObjectProperty,
		"get_scene_snapshot":   b.sceneSnapshot,
	}

	b.add(&Object{Name: "floor", Type: "static_mesh", Properties: map[string]any{"scale": 10.0}})
	b.add(&Object{Name: "player_start", Type: "player_start"})
	b.add(&Object{Name: "sky_light", Type: "light", Properties: map[string]any{"intensity": 1.0}})

	return b
}

// Execute runs the named command. Domain failures (unknown object, missing
// parameter) come back as error envelopes, not Go errors; a Go error means
// the bridge itself broke.
func (b *SceneBridge) Execute(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	h, ok := b.handlers[name]
	if !ok {
		msg := fmt.Sprintf("Unknown command: %s", name)
		if near := b.nearest(name); near != "" {
			msg = fmt.Sprintf("Unknown command: %s (did you mean %q?)", name, near)
		}
		return b.encode(envelope{Status: "error", Error: msg})
	}

	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	logging.Debug().Str("command", name).Msg("executing scene command")
	return b.encode(h(params))
}

// Commands returns the supported command names in sorted order.
func (b *SceneBridge) Commands() []string {
	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *SceneBridge) encode(env envelope) (json.RawMessage, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode command result: %w", err)
	}
	return data, nil
}

// nearest suggests the closest known command name, or "".
func (b *SceneBridge) nearest(name string) string {
	best := ""
	bestScore := 0.0
	for candidate := range b.handlers {
		maxLen := max(len(name), len(candidate))
		if maxLen == 0 {
			continue
		}
		dist := levenshtein.ComputeDistance(name, candidate)
		score := 1.0 - float64(dist)/float64(maxLen)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < 0.5 {
		return ""
	}
	return best
}

func (b *SceneBridge) add(obj *Object) {
	b.objects[obj.Name] = obj
	b.order = append(b.order, obj.Name)
}

// snapshot returns the objects in spawn order. Callers must hold mu.
func (b *SceneBridge) snapshot() []Object {
	out := make([]Object, 0, len(b.order))
	for _, name := range b.order {
		obj := b.objects[name]
		copied := Object{Name: obj.Name, Type: obj.Type}
		if obj.Properties != nil {
			copied.Properties = make(map[string]any, len(obj.Properties))
			for k, v := range obj.Properties {
				copied.Properties[k] = v
			}
		}
		out = append(out, copied)
	}
	return out
}

func errorf(format string, args ...any) envelope {
	return envelope{Status: "error", Error: fmt.Sprintf(format, args...)}
}

func success(result any) envelope {
	return envelope{Status: "success", Result: result}
}
