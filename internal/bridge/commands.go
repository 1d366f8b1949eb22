package bridge

import (
	"encoding/json"
	"strings"
)

func (b *SceneBridge) ping(json.RawMessage) envelope {
	return success("pong")
}

func (b *SceneBridge) listObjects(json.RawMessage) envelope {
	b.mu.RLock()
	defer b.mu.RUnlock()

	objects := b.snapshot()
	return success(map[string]any{"objects": objects, "count": len(objects)})
}

// FindInput selects objects whose name contains the pattern.
type FindInput struct {
	Pattern string `json:"pattern"`
}

func (b *SceneBridge) findObjectsByName(params json.RawMessage) envelope {
	var input FindInput
	if err := json.Unmarshal(params, &input); err != nil {
		return errorf("invalid parameters: %v", err)
	}
	if input.Pattern == "" {
		return errorf("missing required parameter: pattern")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := make([]Object, 0)
	for _, obj := range b.snapshot() {
		if strings.Contains(strings.ToLower(obj.Name), strings.ToLower(input.Pattern)) {
			matched = append(matched, obj)
		}
	}
	return success(map[string]any{"objects": matched, "count": len(matched)})
}

// SpawnInput creates a new scene object.
type SpawnInput struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

func (b *SceneBridge) spawnObject(params json.RawMessage) envelope {
	var input SpawnInput
	if err := json.Unmarshal(params, &input); err != nil {
		return errorf("invalid parameters: %v", err)
	}
	if input.Name == "" {
		return errorf("missing required parameter: name")
	}
	if input.Type == "" {
		return errorf("missing required parameter: type")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[input.Name]; exists {
		return errorf("object already exists: %s", input.Name)
	}

	b.add(&Object{Name: input.Name, Type: input.Type, Properties: input.Properties})
	return success(map[string]any{"name": input.Name, "type": input.Type})
}

// DestroyInput removes a scene object.
type DestroyInput struct {
	Name string `json:"name"`
}

func (b *SceneBridge) destroyObject(params json.RawMessage) envelope {
	var input DestroyInput
	if err := json.Unmarshal(params, &input); err != nil {
		return errorf("invalid parameters: %v", err)
	}
	if input.Name == "" {
		return errorf("missing required parameter: name")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[input.Name]; !exists {
		return errorf("object not found: %s", input.Name)
	}

	delete(b.objects, input.Name)
	for i, name := range b.order {
		if name == input.Name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return success(map[string]any{"destroyed": input.Name})
}

// PropertyInput addresses one property on one object. Value is only used by
// set_object_property.
type PropertyInput struct {
	Name     string `json:"name"`
	Property string `json:"property"`
	Value    any    `json:"value"`
}

func (b *SceneBridge) setObjectProperty(params json.RawMessage) envelope {
	var input PropertyInput
	if err := json.Unmarshal(params, &input); err != nil {
		return errorf("invalid parameters: %v", err)
	}
	if input.Name == "" {
		return errorf("missing required parameter: name")
	}
	if input.Property == "" {
		return errorf("missing required parameter: property")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	obj, exists := b.objects[input.Name]
	if !exists {
		return errorf("object not found: %s", input.Name)
	}

	if obj.Properties == nil {
		obj.Properties = make(map[string]any)
	}
	obj.Properties[input.Property] = input.Value
	return success(map[string]any{
		"name":     input.Name,
		"property": input.Property,
		"value":    input.Value,
	})
}

func (b *SceneBridge) getObjectProperty(params json.RawMessage) envelope {
	var input PropertyInput
	if err := json.Unmarshal(params, &input); err != nil {
		return errorf("invalid parameters: %v", err)
	}
	if input.Name == "" {
		return errorf("missing required parameter: name")
	}
	if input.Property == "" {
		return errorf("missing required parameter: property")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[input.Name]
	if !exists {
		return errorf("object not found: %s", input.Name)
	}

	value, exists := obj.Properties[input.Property]
	if !exists {
		return errorf("property not found: %s.%s", input.Name, input.Property)
	}
	return success(map[string]any{
		"name":     input.Name,
		"property": input.Property,
		"value":    value,
	})
}

func (b *SceneBridge) sceneSnapshot(json.RawMessage) envelope {
	b.mu.RLock()
	defer b.mu.RUnlock()

	objects := b.snapshot()
	return success(map[string]any{"objects": objects, "count": len(objects)})
}
